package task

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"
)

type View string

const (
	ViewAssigned  View = "assigned"
	ViewRequested View = "requested"
	ViewCompleted View = "completed"
)

func ParseView(s string) (View, error) {
	switch v := View(s); v {
	case ViewAssigned, ViewRequested, ViewCompleted:
		return v, nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// ListView returns the tasks of view for userID in display order.
//
//   - assigned: open tasks assigned to the user, earliest deadline first, then priority.
//   - requested: tasks the user requested, newest first.
//   - completed: completed tasks the user requested or completed, latest completion first.
func ListView(ctx context.Context, repo Repository, view View, userID string) ([]*Task, error) {
	var f Filter
	switch view {
	case ViewAssigned:
		f = Filter{AssigneeID: userID, Statuses: []Status{StatusAssigned, StatusInProgress, StatusReassigned}}
	case ViewRequested:
		f = Filter{RequesterID: userID}
	case ViewCompleted:
		f = Filter{InvolvedID: userID, Statuses: []Status{StatusCompleted}}
	default:
		return nil, fmt.Errorf("unknown view %q", view)
	}
	tasks, err := repo.List(ctx, f)
	if err != nil {
		return nil, err
	}

	switch view {
	case ViewAssigned:
		slices.SortStableFunc(tasks, func(a, b *Task) int {
			if c := compareOptionalTime(a.Deadline, b.Deadline); c != 0 {
				return c
			}
			if c := cmp.Compare(a.Priority.Rank(), b.Priority.Rank()); c != 0 {
				return c
			}
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	case ViewRequested:
		slices.SortStableFunc(tasks, func(a, b *Task) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	case ViewCompleted:
		slices.SortStableFunc(tasks, func(a, b *Task) int {
			return compareOptionalTime(b.CompletedAt, a.CompletedAt)
		})
	}
	return tasks, nil
}

// compareOptionalTime orders set times before unset ones.
func compareOptionalTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}
