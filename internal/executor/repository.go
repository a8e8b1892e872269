package executor

import "context"

type Repository interface {
	Get(ctx context.Context, id string) (*Executor, error)
	// List returns every executor ordered by id.
	List(ctx context.Context) ([]*Executor, error)
	// Save creates or replaces the executor record.
	Save(ctx context.Context, e *Executor) error
	Delete(ctx context.Context, id string) error
}
