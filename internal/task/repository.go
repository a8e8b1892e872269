package task

import (
	"context"
	"slices"
)

type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, f Filter) ([]*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	AssigneeID  string
	RequesterID string
	// InvolvedID matches tasks where the id is the assignee or the requester.
	InvolvedID string
	Statuses   []Status
}

func (f Filter) Match(t *Task) bool {
	if f.AssigneeID != "" && t.AssigneeID != f.AssigneeID {
		return false
	}
	if f.RequesterID != "" && t.RequesterID != f.RequesterID {
		return false
	}
	if f.InvolvedID != "" && t.AssigneeID != f.InvolvedID && t.RequesterID != f.InvolvedID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	return true
}
