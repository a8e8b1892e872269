package lifecycle

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/dispatch/internal/eventbus"
	"github.com/kazz187/dispatch/internal/executor"
	"github.com/kazz187/dispatch/internal/message"
	"github.com/kazz187/dispatch/internal/store"
	"github.com/kazz187/dispatch/internal/task"
	"github.com/kazz187/dispatch/internal/win"
)

// SubmitFeedback records the requester's rating of a completed task on the
// task and on its win.
func (c *Controller) SubmitFeedback(ctx context.Context, taskID, actorID string, quality task.Quality, kudos bool) (*task.Task, error) {
	if quality != task.QualityThumbsUp && quality != task.QualityThumbsDown {
		return nil, invalidArgument("quality must be thumbs_up or thumbs_down", "quality.enum")
	}
	unlock := c.store.LockTask(taskID)
	defer unlock()

	var t *task.Task
	err := c.store.Tx(ctx, func(ctx context.Context, r *store.Repos) error {
		var err error
		if t, err = r.Tasks.Get(ctx, taskID); err != nil {
			return err
		}
		if t.Status != task.StatusCompleted {
			return invalidState(t, "rate")
		}
		if actorID != t.RequesterID {
			return notAuthorized(actorID, "rate")
		}
		now := c.now()
		fb := &task.Feedback{Quality: quality, Kudos: kudos, FeedbackByID: actorID, CreatedAt: now}
		t.Feedback = fb
		t.UpdatedAt = now
		if err := r.Tasks.Update(ctx, t); err != nil {
			return err
		}
		w, err := r.Wins.Get(ctx, t.ID)
		switch {
		case err == nil:
			w.Feedback = fb
			return r.Wins.Update(ctx, w)
		case IsNotFound(err):
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	c.bus.PublishNew(eventbus.TypeTaskUpdated, t.ID, &eventbus.TaskPayload{Task: t}, t.Subscribers())
	return t, nil
}

// PostMessage appends a user message to the task thread. Only the requester
// and the assignee take part in a thread.
func (c *Controller) PostMessage(ctx context.Context, taskID, authorID, content string) (*message.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalidArgument("content is required", "content.required")
	}
	return c.appendMessage(ctx, taskID, func(t *task.Task) (*message.Message, error) {
		if authorID == "" || (authorID != t.RequesterID && authorID != t.AssigneeID) {
			return nil, notAuthorized(authorID, "post to")
		}
		return &message.Message{AuthorID: authorID, Role: message.RoleUser, Content: content}, nil
	})
}

// PostSystemMessage appends an assistant message to the task thread.
func (c *Controller) PostSystemMessage(ctx context.Context, taskID, content string) (*message.Message, error) {
	return c.appendMessage(ctx, taskID, func(*task.Task) (*message.Message, error) {
		return &message.Message{Role: message.RoleAssistant, Content: content}, nil
	})
}

func (c *Controller) appendMessage(ctx context.Context, taskID string, build func(*task.Task) (*message.Message, error)) (*message.Message, error) {
	var (
		t *task.Task
		m *message.Message
	)
	err := c.store.Tx(ctx, func(ctx context.Context, r *store.Repos) error {
		var err error
		if t, err = r.Tasks.Get(ctx, taskID); err != nil {
			return err
		}
		if m, err = build(t); err != nil {
			return err
		}
		m.ID = ulid.Make().String()
		m.TaskID = t.ID
		m.CreatedAt = c.now()
		return r.Messages.Create(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	c.publishMessage(t, m)
	return m, nil
}

func (c *Controller) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	return c.store.Tasks.Get(ctx, taskID)
}

func (c *Controller) ListTasks(ctx context.Context, view task.View, userID string) ([]*task.Task, error) {
	return task.ListView(ctx, c.store.Tasks, view, userID)
}

func (c *Controller) ListMessages(ctx context.Context, taskID string) ([]*message.Message, error) {
	if _, err := c.store.Tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return c.store.Messages.List(ctx, taskID)
}

func (c *Controller) ListWins(ctx context.Context, limit int) ([]*win.Win, error) {
	return c.store.Wins.List(ctx, limit)
}

func (c *Controller) ListExecutors(ctx context.Context) ([]*executor.Executor, error) {
	return c.store.Executors.List(ctx)
}
