package intake

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/dispatch/internal/assignment"
	"github.com/kazz187/dispatch/internal/eventbus"
	"github.com/kazz187/dispatch/internal/executor"
	"github.com/kazz187/dispatch/internal/lifecycle"
	"github.com/kazz187/dispatch/internal/router"
	"github.com/kazz187/dispatch/internal/store"
	"github.com/kazz187/dispatch/internal/task"
	"github.com/kazz187/dispatch/pkg/storage"
)

type fakeRouter struct {
	decision *router.Decision
	err      error
	got      router.Request
}

func (f *fakeRouter) Route(_ context.Context, req router.Request) (*router.Decision, error) {
	f.got = req
	return f.decision, f.err
}

func newService(t *testing.T, r router.Router) (*Service, *store.Store) {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	st := store.New(s)
	ctx := context.Background()
	require.NoError(t, st.Executors.Save(ctx, &executor.Executor{ID: "sarah", Name: "Sarah", Role: "Engineer", Skills: []string{"backend"}, MaxConcurrentTasks: 3}))
	require.NoError(t, st.Executors.Save(ctx, &executor.Executor{ID: "jordan", Name: "Jordan", Role: "Analyst", Skills: []string{"data", "visualization"}, MaxConcurrentTasks: 3, CurrentTaskIDs: []string{"old"}}))
	scorer := assignment.NewScorer(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	ctrl := lifecycle.NewController(st, scorer, eventbus.New())
	return NewService(r, ctrl), st
}

func TestSubmit_HumanScored(t *testing.T) {
	r := &fakeRouter{decision: &router.Decision{Title: "Churn dashboard", Tier: task.TierHuman, Priority: task.PriorityHigh, RequiredSkills: []string{"data", "visualization"}}}
	svc, _ := newService(t, r)

	res, err := svc.Submit(context.Background(), "alex", "  build a churn dashboard ")
	require.NoError(t, err)
	assert.Equal(t, "jordan", res.Task.AssigneeID)
	assert.Equal(t, "build a churn dashboard", res.Task.OriginalIntent)
	assert.Equal(t, "build a churn dashboard", res.Task.Description)
	require.NotNil(t, res.Selection)
	assert.Contains(t, res.Reasoning, "Jordan (Analyst, 100% skill match, 67% capacity)")

	require.Len(t, r.got.Team, 2)
	assert.Equal(t, "build a churn dashboard", r.got.Intent)
}

func TestSubmit_RouterAssignee(t *testing.T) {
	r := &fakeRouter{decision: &router.Decision{Title: "Fix login", Tier: task.TierHuman, AssigneeID: "sarah", RequiredSkills: []string{"backend"}}}
	svc, _ := newService(t, r)

	res, err := svc.Submit(context.Background(), "alex", "login is broken")
	require.NoError(t, err)
	assert.Equal(t, "sarah", res.Task.AssigneeID)
	assert.Nil(t, res.Selection)
	assert.Contains(t, res.Reasoning, "Sarah (Engineer, 100% skill match, 100% capacity)")
}

func TestSubmit_UnknownRouterAssigneeFallsBackToScorer(t *testing.T) {
	r := &fakeRouter{decision: &router.Decision{Title: "Fix login", Tier: task.TierHuman, AssigneeID: "ghost", RequiredSkills: []string{"backend"}}}
	svc, _ := newService(t, r)

	res, err := svc.Submit(context.Background(), "alex", "login is broken")
	require.NoError(t, err)
	assert.Equal(t, "sarah", res.Task.AssigneeID)
	assert.NotNil(t, res.Selection)
}

func TestSubmit_AIDirectCompletes(t *testing.T) {
	r := &fakeRouter{decision: &router.Decision{Title: "Team update", Tier: task.TierAIDirect, Result: "Here is the update"}}
	svc, st := newService(t, r)

	res, err := svc.Submit(context.Background(), "alex", "write a team update")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, res.Task.Status)
	assert.Equal(t, "Here is the update", res.Task.Result)
	assert.Empty(t, res.Task.AssigneeID)

	w, err := st.Wins.Get(context.Background(), res.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, "AI", w.CompletedByName)
}

func TestSubmit_AIDirectWithoutResultStaysPending(t *testing.T) {
	r := &fakeRouter{decision: &router.Decision{Title: "Team update", Tier: task.TierAIDirect}}
	svc, _ := newService(t, r)

	res, err := svc.Submit(context.Background(), "alex", "write a team update")
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, res.Task.Status)
	assert.Contains(t, res.Reasoning, "Working on it")
}

func TestSubmit_RoutingFailureCreatesNothing(t *testing.T) {
	_, routeErr := router.Decode("not json")
	r := &fakeRouter{err: routeErr}
	svc, st := newService(t, r)

	_, err := svc.Submit(context.Background(), "alex", "do something")
	assert.ErrorIs(t, err, router.ErrRoutingFailure)
	tasks, err := st.Tasks.List(context.Background(), task.Filter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestSubmit_Validation(t *testing.T) {
	svc, _ := newService(t, &fakeRouter{})
	_, err := svc.Submit(context.Background(), "", "x")
	assert.True(t, lifecycle.IsInvalidArgument(err))
	_, err = svc.Submit(context.Background(), "alex", "   ")
	assert.True(t, lifecycle.IsInvalidArgument(err))
}
