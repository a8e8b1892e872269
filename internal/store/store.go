package store

import (
	"context"
	"sync"

	"github.com/kazz187/dispatch/internal/executor"
	executorrepo "github.com/kazz187/dispatch/internal/executor/repositoryimpl"
	"github.com/kazz187/dispatch/internal/message"
	messagerepo "github.com/kazz187/dispatch/internal/message/repositoryimpl"
	"github.com/kazz187/dispatch/internal/pushsubscription"
	pushsubscriptionrepo "github.com/kazz187/dispatch/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/dispatch/internal/task"
	taskrepo "github.com/kazz187/dispatch/internal/task/repositoryimpl"
	"github.com/kazz187/dispatch/internal/win"
	winrepo "github.com/kazz187/dispatch/internal/win/repositoryimpl"
	"github.com/kazz187/dispatch/pkg/cerr"
	"github.com/kazz187/dispatch/pkg/storage"
)

// Repos is the set of repositories bound to one storage view.
type Repos struct {
	Tasks     task.Repository
	Executors executor.Repository
	Messages  message.Repository
	Wins      win.Repository
}

func newRepos(s storage.Storage) *Repos {
	return &Repos{
		Tasks:     taskrepo.NewYAMLRepository(s),
		Executors: executorrepo.NewYAMLRepository(s),
		Messages:  messagerepo.NewYAMLRepository(s),
		Wins:      winrepo.NewYAMLRepository(s),
	}
}

// Store owns the persisted entities. Reads through the embedded Repos see
// committed state; mutations go through Tx.
type Store struct {
	*Repos
	PushSubscriptions pushsubscription.Repository

	storage storage.Storage
	txMu    sync.Mutex
	locks   *keyedMutex
}

func New(s storage.Storage) *Store {
	return &Store{
		Repos:             newRepos(s),
		PushSubscriptions: pushsubscriptionrepo.NewYAMLRepository(s),
		storage:           s,
		locks:             newKeyedMutex(),
	}
}

// Tx runs fn against repositories that stage their writes, then commits
// everything in one storage batch. If fn or the commit fails nothing is
// persisted. Transactions are serialized, so reads inside fn observe every
// earlier commit. fn must not call Tx.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, r *Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	batch := storage.NewBatch(s.storage)
	if err := fn(ctx, newRepos(batch)); err != nil {
		return err
	}
	if err := batch.Commit(ctx); err != nil {
		return cerr.WrapStorageWriteError("transaction", err)
	}
	return nil
}

// LockTask serializes work on a single task across callers. Acquire it
// before Tx, never inside.
func (s *Store) LockTask(taskID string) (unlock func()) {
	return s.locks.Lock(taskID)
}
