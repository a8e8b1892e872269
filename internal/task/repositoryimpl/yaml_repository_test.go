package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/dispatch/internal/task"
	"github.com/kazz187/dispatch/pkg/cerr"
	"github.com/kazz187/dispatch/pkg/storage"
)

func newRepo(t *testing.T) *YAMLRepository {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(s)
}

func TestYAMLRepository_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	deadline := time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC)
	tk := &task.Task{
		ID:             "t1",
		Title:          "Q3 churn chart",
		RequesterID:    "alex",
		AssigneeID:     "jordan",
		ExecutionTier:  task.TierHuman,
		Status:         task.StatusAssigned,
		Priority:       task.PriorityHigh,
		RequiredSkills: []string{"data", "visualization"},
		Deadline:       &deadline,
		IsAnonymous:    true,
	}
	require.NoError(t, repo.Create(ctx, tk))
	err := repo.Create(ctx, tk)
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "jordan", got.AssigneeID)
	assert.Equal(t, []string{"data", "visualization"}, got.RequiredSkills)
	require.NotNil(t, got.Deadline)
	assert.True(t, deadline.Equal(*got.Deadline))
	assert.Nil(t, got.Escalation)

	got.EscalationState().AddPreviousAssignee("sarah")
	got.Status = task.StatusReassigned
	require.NoError(t, repo.Update(ctx, got))

	again, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusReassigned, again.Status)
	assert.Equal(t, []string{"sarah"}, again.Escalation.PreviousAssigneeIDs)
}

func TestYAMLRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	_, err := repo.Get(ctx, "missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
	err = repo.Update(ctx, &task.Task{ID: "missing"})
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
	err = repo.Delete(ctx, "missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestYAMLRepository_ListFilter(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	for _, tk := range []*task.Task{
		{ID: "a", RequesterID: "alex", AssigneeID: "sarah", Status: task.StatusInProgress},
		{ID: "b", RequesterID: "sarah", AssigneeID: "jordan", Status: task.StatusAssigned},
		{ID: "c", RequesterID: "alex", Status: task.StatusPending},
	} {
		require.NoError(t, repo.Create(ctx, tk))
	}

	all, err := repo.List(ctx, task.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	involved, err := repo.List(ctx, task.Filter{InvolvedID: "sarah"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(involved))

	open, err := repo.List(ctx, task.Filter{RequesterID: "alex", Statuses: []task.Status{task.StatusPending}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(open))
}

func ids(tasks []*task.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
