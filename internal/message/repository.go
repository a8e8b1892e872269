package message

import "context"

type Repository interface {
	Create(ctx context.Context, m *Message) error
	// List returns the thread of taskID, oldest first.
	List(ctx context.Context, taskID string) ([]*Message, error)
}
