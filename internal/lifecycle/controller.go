package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/dispatch/internal/assignment"
	"github.com/kazz187/dispatch/internal/eventbus"
	"github.com/kazz187/dispatch/internal/executor"
	"github.com/kazz187/dispatch/internal/message"
	"github.com/kazz187/dispatch/internal/store"
	"github.com/kazz187/dispatch/internal/task"
	"github.com/kazz187/dispatch/internal/win"
	"github.com/kazz187/dispatch/pkg/clog"
)

// Controller moves tasks through their lifecycle. Every mutation holds the
// task's lock and commits the task, the affected executors and any thread
// message in one transaction; events are published after the commit.
type Controller struct {
	store  *store.Store
	scorer *assignment.Scorer
	bus    *eventbus.Bus
	now    func() time.Time
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

func NewController(st *store.Store, scorer *assignment.Scorer, bus *eventbus.Bus, opts ...Option) *Controller {
	c := &Controller{
		store:  st,
		scorer: scorer,
		bus:    bus,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type CreateParams struct {
	Title            string
	Description      string
	OriginalIntent   string
	RequesterID      string
	Tier             task.Tier
	Priority         task.Priority
	RequiredSkills   []string
	EstimatedMinutes int
	Deadline         *time.Time
	RoutingReason    string
	// AssigneeID assigns the task explicitly. When empty, tiers that need an
	// executor are assigned by the scorer.
	AssigneeID string
}

func (p *CreateParams) validate() error {
	switch {
	case strings.TrimSpace(p.Title) == "":
		return invalidArgument("title is required", "title.required")
	case p.RequesterID == "":
		return invalidArgument("requester is required", "requester_id.required")
	case !p.Tier.Valid():
		return invalidArgument(fmt.Sprintf("unknown execution tier %q", p.Tier), "execution_tier.enum")
	case p.Priority != "" && !p.Priority.Valid():
		return invalidArgument(fmt.Sprintf("unknown priority %q", p.Priority), "priority.enum")
	case p.EstimatedMinutes < 0:
		return invalidArgument("estimated minutes must not be negative", "estimated_minutes.gte")
	}
	return nil
}

// CreateTask persists a new task. It is assigned when an assignee is given
// or picked by the scorer, and pending otherwise. The returned selection is
// nil unless the scorer made the choice.
func (c *Controller) CreateTask(ctx context.Context, p CreateParams) (*task.Task, *assignment.Selection, error) {
	if err := p.validate(); err != nil {
		return nil, nil, err
	}
	now := c.now()
	t := &task.Task{
		ID:               ulid.Make().String(),
		Title:            strings.TrimSpace(p.Title),
		Description:      p.Description,
		OriginalIntent:   p.OriginalIntent,
		RequesterID:      p.RequesterID,
		ExecutionTier:    p.Tier,
		RoutingReason:    p.RoutingReason,
		Status:           task.StatusPending,
		Priority:         p.Priority,
		RequiredSkills:   slices.Clone(p.RequiredSkills),
		EstimatedMinutes: p.EstimatedMinutes,
		Deadline:         p.Deadline,
		CreatedAt:        now,
		UpdatedAt:        now,
		IsAnonymous:      true,
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if t.OriginalIntent == "" {
		t.OriginalIntent = p.Description
	}

	var (
		sel  *assignment.Selection
		note *message.Message
	)
	err := c.store.Tx(ctx, func(ctx context.Context, r *store.Repos) error {
		var assignee *executor.Executor
		switch {
		case p.AssigneeID != "":
			e, err := r.Executors.Get(ctx, p.AssigneeID)
			if err != nil {
				return err
			}
			assignee = e
		case p.Tier.NeedsExecutor():
			pool, err := r.Executors.List(ctx)
			if err != nil {
				return err
			}
			if s, ok := c.scorer.Select(t.RequiredSkills, nil, pool); ok {
				sel = s
				assignee = s.Executor
			}
		}

		text := fmt.Sprintf("Routed as %s.", t.ExecutionTier)
		if t.RoutingReason != "" {
			text += " " + t.RoutingReason
		}
		if assignee != nil {
			t.AssigneeID = assignee.ID
			t.Status = task.StatusAssigned
			t.AssignmentHistory = append(t.AssignmentHistory, task.AssignmentRecord{ToID: assignee.ID, Reason: "initial assignment", At: now})
			assignee.AddTask(t.ID)
			if err := r.Executors.Save(ctx, assignee); err != nil {
				return err
			}
			text += fmt.Sprintf(" Assigned to %s.", displayName(assignee))
			if sel != nil {
				text += " " + sel.Reason
			}
		} else if p.Tier.NeedsExecutor() {
			text += " No executor is available; the task is waiting for assignment."
		}
		if err := r.Tasks.Create(ctx, t); err != nil {
			return err
		}
		note = c.systemMessage(t.ID, text, now)
		return r.Messages.Create(ctx, note)
	})
	if err != nil {
		return nil, nil, err
	}

	clog.AddAttributes(ctx, map[string]any{clog.TaskIDAttributeKey: t.ID, clog.AssigneeIDAttributeKey: t.AssigneeID})
	slog.InfoContext(ctx, "task created", "task_id", t.ID, "tier", t.ExecutionTier, "status", t.Status, "assignee_id", t.AssigneeID)
	c.bus.PublishNew(eventbus.TypeTaskCreated, t.ID, &eventbus.TaskPayload{Task: t}, t.Subscribers())
	c.publishMessage(t, note)
	return t, sel, nil
}

// StartTask moves an assigned or reassigned task to in_progress. Only the
// assignee may start it.
func (c *Controller) StartTask(ctx context.Context, taskID, actorID string) (*task.Task, error) {
	unlock := c.store.LockTask(taskID)
	defer unlock()

	var t *task.Task
	err := c.store.Tx(ctx, func(ctx context.Context, r *store.Repos) error {
		var err error
		if t, err = r.Tasks.Get(ctx, taskID); err != nil {
			return err
		}
		if t.Status.Terminal() {
			return invalidState(t, "start")
		}
		if actorID == "" || actorID != t.AssigneeID {
			return notAuthorized(actorID, "start")
		}
		if t.Status != task.StatusAssigned && t.Status != task.StatusReassigned {
			return invalidState(t, "start")
		}
		now := c.now()
		t.Status = task.StatusInProgress
		t.StartedAt = &now
		t.UpdatedAt = now
		return r.Tasks.Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "task started", "task_id", t.ID, "assignee_id", t.AssigneeID)
	c.bus.PublishNew(eventbus.TypeTaskUpdated, t.ID, &eventbus.TaskPayload{Task: t}, t.Subscribers())
	return t, nil
}

// CompleteTask finishes a task, frees the assignee's capacity and records
// the shared win. The assignee completes human and agent tasks; ai_direct
// tasks complete without a human actor. Completing twice is rejected.
func (c *Controller) CompleteTask(ctx context.Context, taskID, actorID, result string) (*task.Task, *win.Win, error) {
	unlock := c.store.LockTask(taskID)
	defer unlock()

	var (
		t    *task.Task
		w    *win.Win
		note *message.Message
	)
	err := c.store.Tx(ctx, func(ctx context.Context, r *store.Repos) error {
		var err error
		if t, err = r.Tasks.Get(ctx, taskID); err != nil {
			return err
		}
		if t.Status.Terminal() {
			return invalidState(t, "complete")
		}
		if t.ExecutionTier != task.TierAIDirect && (actorID == "" || actorID != t.AssigneeID) {
			return notAuthorized(actorID, "complete")
		}

		now := c.now()
		t.Status = task.StatusCompleted
		t.CompletedAt = &now
		t.UpdatedAt = now
		t.Result = result
		t.RequesterRevealed = true

		w = &win.Win{
			TaskID:          t.ID,
			TaskTitle:       t.Title,
			CompletedByName: win.AIName,
			CompletedByRole: win.AIRole,
			ExecutionTier:   t.ExecutionTier,
			CompletedAt:     now,
		}
		if t.AssigneeID != "" {
			e, err := r.Executors.Get(ctx, t.AssigneeID)
			switch {
			case err == nil:
				e.RemoveTask(t.ID)
				if err := r.Executors.Save(ctx, e); err != nil {
					return err
				}
				if t.ExecutionTier != task.TierAIDirect {
					w.CompletedByID = e.ID
					w.CompletedByName = displayName(e)
					w.CompletedByRole = e.Role
				}
			case !IsNotFound(err):
				return err
			}
		}
		if err := r.Tasks.Update(ctx, t); err != nil {
			return err
		}
		if err := r.Wins.Create(ctx, w); err != nil {
			return err
		}
		if result != "" {
			note = &message.Message{
				ID:        ulid.Make().String(),
				TaskID:    t.ID,
				AuthorID:  actorID,
				Role:      message.RoleUser,
				Content:   result,
				CreatedAt: now,
			}
			if actorID == "" {
				note.Role = message.RoleAssistant
			}
			return r.Messages.Create(ctx, note)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	slog.InfoContext(ctx, "task completed", "task_id", t.ID, "completed_by", w.CompletedByName, "tier", t.ExecutionTier)
	c.bus.PublishNew(eventbus.TypeTaskCompleted, t.ID, &eventbus.TaskPayload{Task: t, Win: w}, t.Subscribers())
	if note != nil {
		c.publishMessage(t, note)
	}
	return t, w, nil
}

// ReassignTask hands a task to newAssigneeID, releasing the previous
// assignee's capacity and recording them in the escalation history.
func (c *Controller) ReassignTask(ctx context.Context, taskID, newAssigneeID, reason string) (*task.Task, error) {
	unlock := c.store.LockTask(taskID)
	defer unlock()

	var (
		t        *task.Task
		previous string
		note     *message.Message
	)
	err := c.store.Tx(ctx, func(ctx context.Context, r *store.Repos) error {
		var err error
		if t, err = r.Tasks.Get(ctx, taskID); err != nil {
			return err
		}
		if t.Status.Terminal() {
			return invalidState(t, "reassign")
		}
		next, err := r.Executors.Get(ctx, newAssigneeID)
		if err != nil {
			return err
		}
		if t.AssigneeID == next.ID {
			return invalidArgument(fmt.Sprintf("task is already assigned to %s", next.ID), "assignee_id.changed")
		}
		previous = t.AssigneeID
		note, err = c.reassign(ctx, r, t, next, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.publishReassigned(ctx, t, previous, reason, note)
	return t, nil
}

// reassign applies a reassignment inside a transaction.
func (c *Controller) reassign(ctx context.Context, r *store.Repos, t *task.Task, next *executor.Executor, reason string) (*message.Message, error) {
	now := c.now()
	prevName := "nobody"
	if t.AssigneeID != "" {
		prev, err := r.Executors.Get(ctx, t.AssigneeID)
		switch {
		case err == nil:
			prev.RemoveTask(t.ID)
			if err := r.Executors.Save(ctx, prev); err != nil {
				return nil, err
			}
			prevName = displayName(prev)
		case !IsNotFound(err):
			return nil, err
		default:
			prevName = t.AssigneeID
		}
		t.EscalationState().AddPreviousAssignee(t.AssigneeID)
	}

	t.AssignmentHistory = append(t.AssignmentHistory, task.AssignmentRecord{
		FromID: t.AssigneeID,
		ToID:   next.ID,
		Reason: reason,
		At:     now,
	})
	t.AssigneeID = next.ID
	t.Status = task.StatusReassigned
	t.UpdatedAt = now
	next.AddTask(t.ID)
	if err := r.Executors.Save(ctx, next); err != nil {
		return nil, err
	}
	if err := r.Tasks.Update(ctx, t); err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Reassigned from %s to %s.", prevName, displayName(next))
	if reason != "" {
		text += " Reason: " + reason
	}
	note := c.systemMessage(t.ID, text, now)
	if err := r.Messages.Create(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

func (c *Controller) publishReassigned(ctx context.Context, t *task.Task, previous, reason string, note *message.Message) {
	slog.InfoContext(ctx, "task reassigned", "task_id", t.ID, "from", previous, "to", t.AssigneeID, "reason", reason)
	recipients := t.Subscribers()
	if previous != "" && !slices.Contains(recipients, previous) {
		recipients = append(recipients, previous)
	}
	c.bus.PublishNew(eventbus.TypeTaskReassigned, t.ID, &eventbus.TaskPayload{
		Task:               t,
		PreviousAssigneeID: previous,
		Reason:             reason,
	}, recipients)
	c.publishMessage(t, note)
}

// CancelTask stops a task and frees its assignee's capacity.
func (c *Controller) CancelTask(ctx context.Context, taskID string) (*task.Task, error) {
	unlock := c.store.LockTask(taskID)
	defer unlock()

	var t *task.Task
	err := c.store.Tx(ctx, func(ctx context.Context, r *store.Repos) error {
		var err error
		if t, err = r.Tasks.Get(ctx, taskID); err != nil {
			return err
		}
		if t.Status.Terminal() {
			return invalidState(t, "cancel")
		}
		if t.AssigneeID != "" {
			e, err := r.Executors.Get(ctx, t.AssigneeID)
			switch {
			case err == nil:
				e.RemoveTask(t.ID)
				if err := r.Executors.Save(ctx, e); err != nil {
					return err
				}
			case !IsNotFound(err):
				return err
			}
		}
		t.Status = task.StatusCancelled
		t.UpdatedAt = c.now()
		return r.Tasks.Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "task cancelled", "task_id", t.ID)
	c.bus.PublishNew(eventbus.TypeTaskUpdated, t.ID, &eventbus.TaskPayload{Task: t}, t.Subscribers())
	return t, nil
}

func (c *Controller) systemMessage(taskID, content string, at time.Time) *message.Message {
	return &message.Message{
		ID:        ulid.Make().String(),
		TaskID:    taskID,
		Role:      message.RoleAssistant,
		Content:   content,
		CreatedAt: at,
	}
}

func (c *Controller) publishMessage(t *task.Task, m *message.Message) {
	c.bus.PublishNew(eventbus.TypeMessageNew, t.ID, &eventbus.MessagePayload{Message: m, Task: t}, t.Subscribers())
}

func displayName(e *executor.Executor) string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}
