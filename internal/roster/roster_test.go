package roster

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/dispatch/internal/executor"
	"github.com/kazz187/dispatch/internal/store"
	"github.com/kazz187/dispatch/pkg/cerr"
	"github.com/kazz187/dispatch/pkg/storage"
)

const team = `executors:
  - id: sarah
    name: Sarah Chen
    role: Backend Engineer
    skills: [Backend, " api "]
    max_concurrent_tasks: 3
  - id: jordan
    name: Jordan Lee
    role: Data Analyst
    skills: [data]
`

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return store.New(s)
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(team))
	require.NoError(t, err)
	require.Len(t, f.Executors, 2)
	assert.Equal(t, []string{"backend", "api"}, f.Executors[0].Skills)
	assert.Equal(t, defaultMaxConcurrentTasks, f.Executors[1].MaxConcurrentTasks)

	_, err = Parse([]byte("executors:\n  - name: nobody\n"))
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	_, err = Parse([]byte("executors:\n  - id: a\n  - id: a\n"))
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	_, err = Parse([]byte("executors: ["))
	assert.Error(t, err)
}

func TestApply_PreservesCurrentTasks(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.Executors.Save(ctx, &executor.Executor{ID: "sarah", Name: "Old", CurrentTaskIDs: []string{"t1"}, MaxConcurrentTasks: 1}))
	require.NoError(t, st.Executors.Save(ctx, &executor.Executor{ID: "kim", CurrentTaskIDs: []string{"t2"}}))
	require.NoError(t, st.Executors.Save(ctx, &executor.Executor{ID: "idle"}))

	f, err := Parse([]byte(team))
	require.NoError(t, err)
	require.NoError(t, Apply(ctx, st, f))

	sarah, err := st.Executors.Get(ctx, "sarah")
	require.NoError(t, err)
	assert.Equal(t, "Sarah Chen", sarah.Name)
	assert.Equal(t, 3, sarah.MaxConcurrentTasks)
	assert.Equal(t, []string{"t1"}, sarah.CurrentTaskIDs)

	_, err = st.Executors.Get(ctx, "jordan")
	assert.NoError(t, err)
	_, err = st.Executors.Get(ctx, "kim")
	assert.NoError(t, err, "executor with active tasks is kept")
	_, err = st.Executors.Get(ctx, "idle")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := newStore(t)
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(team), 0o644))

	w := NewWatcher(st, path)
	require.NoError(t, w.Load(ctx))
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	updated := team + "  - id: alex\n    name: Alex Kim\n    skills: [planning]\n"
	// Start may not have registered the watch yet; rewrite until it reacts.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(updated), 0o644)
		select {
		case <-w.Reloaded():
			return true
		case <-time.After(2 * DebounceInterval):
			return false
		}
	}, 10*time.Second, 10*time.Millisecond)

	alex, err := st.Executors.Get(ctx, "alex")
	require.NoError(t, err)
	assert.Equal(t, "Alex Kim", alex.Name)

	cancel()
	assert.NoError(t, <-done)
}

func TestWatcher_KeepsLastGoodRoster(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(team), 0o644))

	w := NewWatcher(st, path)
	require.NoError(t, w.Load(ctx))
	require.NoError(t, os.WriteFile(path, []byte("executors: ["), 0o644))
	w.reload(ctx)

	list, err := st.Executors.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	select {
	case <-w.Reloaded():
		t.Fatal("invalid roster must not count as a reload")
	default:
	}
}
