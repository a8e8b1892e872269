package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/kazz187/dispatch/internal/eventbus"
	"github.com/kazz187/dispatch/internal/message"
	"github.com/kazz187/dispatch/internal/task"
)

type Answer string

const (
	AnswerCanFinish   Answer = "can_finish"
	AnswerDecline     Answer = "decline"
	AnswerUnsupported Answer = "unsupported"
)

// CheckIn asks a task's assignee whether they will make the deadline.
// Implementations must return when ctx is done.
type CheckIn interface {
	Confirm(ctx context.Context, t *task.Task) (Answer, error)
}

// InlineCheckIn is used where the assignee only sees notifications and
// cannot answer.
type InlineCheckIn struct{}

func (InlineCheckIn) Confirm(context.Context, *task.Task) (Answer, error) {
	return AnswerUnsupported, nil
}

type MessagePoster interface {
	PostSystemMessage(ctx context.Context, taskID, content string) (*message.Message, error)
}

// ThreadCheckIn asks in the task thread and waits for the assignee to reply
// yes or no. Replies that are neither are ignored.
type ThreadCheckIn struct {
	poster MessagePoster
	bus    *eventbus.Bus
}

func NewThreadCheckIn(poster MessagePoster, bus *eventbus.Bus) *ThreadCheckIn {
	return &ThreadCheckIn{poster: poster, bus: bus}
}

func (c *ThreadCheckIn) Confirm(ctx context.Context, t *task.Task) (Answer, error) {
	subID, events := c.bus.SubscribeFunc(16, func(ev *eventbus.Event) bool {
		return ev.Type == eventbus.TypeMessageNew && ev.TaskID == t.ID
	})
	defer c.bus.Unsubscribe(subID)

	question, err := c.poster.PostSystemMessage(ctx, t.ID,
		fmt.Sprintf("%q is almost out of time. Can you still finish it before the deadline? Reply yes or no.", t.Title))
	if err != nil {
		return AnswerUnsupported, err
	}

	for {
		select {
		case <-ctx.Done():
			return AnswerUnsupported, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return AnswerUnsupported, nil
			}
			p, ok := ev.Payload.(*eventbus.MessagePayload)
			if !ok || p.Message.ID == question.ID || p.Message.AuthorID != t.AssigneeID {
				continue
			}
			if a, ok := ParseAnswer(p.Message.Content); ok {
				return a, nil
			}
		}
	}
}

// ParseAnswer reads a yes/no reply.
func ParseAnswer(s string) (Answer, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!'
	})
	if len(fields) == 0 {
		return "", false
	}
	switch fields[0] {
	case "yes", "y", "yeah", "yep", "sure", "ok", "okay":
		return AnswerCanFinish, true
	case "no", "n", "nope", "cannot", "can't", "cant":
		return AnswerDecline, true
	}
	switch {
	case strings.HasPrefix(s, "i can't"), strings.HasPrefix(s, "i cannot"), strings.HasPrefix(s, "i won't"):
		return AnswerDecline, true
	case strings.HasPrefix(s, "i can"), strings.HasPrefix(s, "i will"):
		return AnswerCanFinish, true
	}
	return "", false
}
