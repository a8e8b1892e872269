package win

import "context"

type Repository interface {
	// Create fails with AlreadyExists when the task already has a win.
	Create(ctx context.Context, w *Win) error
	Get(ctx context.Context, taskID string) (*Win, error)
	Update(ctx context.Context, w *Win) error
	// List returns wins, most recent completion first.
	List(ctx context.Context, limit int) ([]*Win, error)
}
