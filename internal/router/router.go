package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kazz187/dispatch/internal/executor"
	"github.com/kazz187/dispatch/internal/task"
	"github.com/kazz187/dispatch/pkg/cerr"
)

// ErrRoutingFailure marks a router call that timed out, failed or returned
// something that is not a routing decision. No task is created for it.
var ErrRoutingFailure = errors.New("routing failure")

func routingFailure(msg string, err error) error {
	if err == nil {
		err = ErrRoutingFailure
	} else {
		err = fmt.Errorf("%w: %w", ErrRoutingFailure, err)
	}
	return cerr.NewError(cerr.Unavailable, msg, err)
}

// Profile is the snapshot of an executor the router sees.
type Profile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Skills      []string `json:"skills"`
	CurrentLoad int      `json:"currentLoad"`
	MaxCapacity int      `json:"maxCapacity"`
}

func ProfileOf(e *executor.Executor) Profile {
	return Profile{
		ID:          e.ID,
		Name:        e.Name,
		Role:        e.Role,
		Skills:      e.Skills,
		CurrentLoad: e.Load(),
		MaxCapacity: e.MaxConcurrentTasks,
	}
}

type Request struct {
	Intent string
	Team   []Profile
	Now    time.Time
}

// Decision is how the router wants an intent handled.
type Decision struct {
	Title            string
	Description      string
	Tier             task.Tier
	AssigneeID       string
	Priority         task.Priority
	EstimatedMinutes int
	RequiredSkills   []string
	RoutingReason    string
	Deadline         *time.Time
	// Result is the finished work for ai_direct decisions, if the router
	// produced it.
	Result string
}

type Router interface {
	Route(ctx context.Context, req Request) (*Decision, error)
}
