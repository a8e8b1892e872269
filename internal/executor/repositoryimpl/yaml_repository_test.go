package repositoryimpl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/dispatch/internal/executor"
	"github.com/kazz187/dispatch/pkg/cerr"
	"github.com/kazz187/dispatch/pkg/storage"
)

func TestYAMLRepository(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	repo := NewYAMLRepository(s)

	for _, e := range []*executor.Executor{
		{ID: "sarah", Name: "Sarah", Role: "Engineer", Skills: []string{"backend"}, MaxConcurrentTasks: 3},
		{ID: "alex", Name: "Alex", Role: "PM", MaxConcurrentTasks: 3},
	} {
		require.NoError(t, repo.Save(ctx, e))
	}

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alex", list[0].ID)
	assert.Equal(t, "sarah", list[1].ID)

	sarah, err := repo.Get(ctx, "sarah")
	require.NoError(t, err)
	assert.True(t, sarah.AddTask("t1"))
	require.NoError(t, repo.Save(ctx, sarah))

	sarah, err = repo.Get(ctx, "sarah")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, sarah.CurrentTaskIDs)

	_, err = repo.Get(ctx, "nobody")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
	assert.True(t, cerr.IsCode(repo.Save(ctx, &executor.Executor{}), cerr.InvalidArgument))
}
