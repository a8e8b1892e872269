package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/dispatch/internal/executor"
	"github.com/kazz187/dispatch/internal/task"
	"github.com/kazz187/dispatch/pkg/cerr"
	"github.com/kazz187/dispatch/pkg/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return New(s)
}

func TestStore_TxCommitsTaskAndCapacityTogether(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.Executors.Save(ctx, &executor.Executor{ID: "sarah", MaxConcurrentTasks: 3}))

	err := st.Tx(ctx, func(ctx context.Context, r *Repos) error {
		if err := r.Tasks.Create(ctx, &task.Task{ID: "t1", AssigneeID: "sarah", Status: task.StatusAssigned}); err != nil {
			return err
		}
		e, err := r.Executors.Get(ctx, "sarah")
		if err != nil {
			return err
		}
		e.AddTask("t1")
		return r.Executors.Save(ctx, e)
	})
	require.NoError(t, err)

	got, err := st.Tasks.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "sarah", got.AssigneeID)
	sarah, err := st.Executors.Get(ctx, "sarah")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, sarah.CurrentTaskIDs)
}

func TestStore_TxDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.Executors.Save(ctx, &executor.Executor{ID: "sarah", MaxConcurrentTasks: 3}))

	boom := errors.New("boom")
	err := st.Tx(ctx, func(ctx context.Context, r *Repos) error {
		e, err := r.Executors.Get(ctx, "sarah")
		if err != nil {
			return err
		}
		e.AddTask("t1")
		if err := r.Executors.Save(ctx, e); err != nil {
			return err
		}
		// Staged writes are visible inside the transaction.
		staged, err := r.Executors.Get(ctx, "sarah")
		if err != nil {
			return err
		}
		assert.Equal(t, []string{"t1"}, staged.CurrentTaskIDs)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	sarah, err := st.Executors.Get(ctx, "sarah")
	require.NoError(t, err)
	assert.Empty(t, sarah.CurrentTaskIDs)
	_, err = st.Tasks.Get(ctx, "t1")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestStore_LockTask(t *testing.T) {
	st := newStore(t)

	unlock := st.LockTask("t1")
	acquired := make(chan struct{})
	go func() {
		u := st.LockTask("t1")
		close(acquired)
		u()
	}()

	// A different key is independent.
	other := st.LockTask("t2")
	other()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	unlock() // second call is a no-op

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("lock was not released")
	}
}

func TestStore_LockTaskConcurrent(t *testing.T) {
	st := newStore(t)
	var (
		wg      sync.WaitGroup
		counter int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := st.LockTask("t1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Empty(t, st.locks.entries)
}
