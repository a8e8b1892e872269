package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kazz187/dispatch/internal/assignment"
	"github.com/kazz187/dispatch/internal/eventbus"
	"github.com/kazz187/dispatch/internal/message"
	"github.com/kazz187/dispatch/internal/store"
	"github.com/kazz187/dispatch/internal/task"
)

// DeadlineReassignReason is recorded on reassignments made after a declined
// deadline check-in.
const DeadlineReassignReason = "deadline reassignment"

type EscalationOutcome string

const (
	// OutcomeReassigned means the task moved to a new executor.
	OutcomeReassigned EscalationOutcome = "reassigned"
	// OutcomeManualReview means no other executor could take the task; it
	// stays with its assignee and is flagged for a human to resolve.
	OutcomeManualReview EscalationOutcome = "manual_review"
	// OutcomeStale means the task left the active set or changed hands
	// after the check-in began; nothing was changed.
	OutcomeStale EscalationOutcome = "stale"
)

type EscalationResult struct {
	Outcome   EscalationOutcome
	Task      *task.Task
	Selection *assignment.Selection
}

// ReassignAway moves a task off expectedAssigneeID to the best executor who
// is neither the current nor any previous assignee. Scoring and the
// reassignment happen under the task lock against the current roster. When
// nobody qualifies the task is flagged for manual review instead; that
// outcome is final and is not retried.
func (c *Controller) ReassignAway(ctx context.Context, taskID, expectedAssigneeID string) (*EscalationResult, error) {
	unlock := c.store.LockTask(taskID)
	defer unlock()

	res := &EscalationResult{}
	var (
		previous string
		note     *message.Message
	)
	err := c.store.Tx(ctx, func(ctx context.Context, r *store.Repos) error {
		t, err := r.Tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		res.Task = t
		if !t.Status.Active() || t.AssigneeID != expectedAssigneeID {
			res.Outcome = OutcomeStale
			return nil
		}

		exclude := excludedFor(t)
		pool, err := r.Executors.List(ctx)
		if err != nil {
			return err
		}
		sel, ok := c.scorer.Select(t.RequiredSkills, exclude, pool)
		if !ok {
			res.Outcome = OutcomeManualReview
			t.NeedsManualReview = true
			t.UpdatedAt = c.now()
			if err := r.Tasks.Update(ctx, t); err != nil {
				return err
			}
			note = c.systemMessage(t.ID, "No other team member is available to take over. Flagged for manual review.", t.UpdatedAt)
			return r.Messages.Create(ctx, note)
		}

		res.Outcome = OutcomeReassigned
		res.Selection = sel
		previous = t.AssigneeID
		note, err = c.reassign(ctx, r, t, sel.Executor, DeadlineReassignReason)
		return err
	})
	if err != nil {
		return nil, err
	}

	t := res.Task
	switch res.Outcome {
	case OutcomeReassigned:
		c.publishReassigned(ctx, t, previous, DeadlineReassignReason, note)
		if res.Selection.Degraded() {
			slog.WarnContext(ctx, "deadline reassignment used a fallback", "task_id", t.ID, "reason", res.Selection.Reason)
		}
	case OutcomeManualReview:
		slog.WarnContext(ctx, "no reassignment candidate, task flagged for manual review", "task_id", t.ID, "assignee_id", t.AssigneeID)
		c.bus.PublishNew(eventbus.TypeManualReview, t.ID, &eventbus.EscalationPayload{
			Task:     t,
			Progress: 1,
			Severity: eventbus.SeverityUrgent,
			Message:  fmt.Sprintf("%q needs manual review: no one else can take it over.", t.Title),
		}, t.Subscribers())
		c.publishMessage(t, note)
	case OutcomeStale:
		slog.InfoContext(ctx, "escalation skipped, task changed", "task_id", t.ID, "status", t.Status, "assignee_id", t.AssigneeID, "expected_assignee_id", expectedAssigneeID)
	}
	return res, nil
}

// excludedFor lists the executors a deadline reassignment may not choose.
func excludedFor(t *task.Task) []string {
	out := []string{t.AssigneeID}
	if t.Escalation != nil {
		for _, id := range t.Escalation.PreviousAssigneeIDs {
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
	}
	return out
}
