package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// Entry is a single staged mutation. A nil Data with Delete set removes the path.
type Entry struct {
	Path   string
	Data   []byte
	Delete bool
}

// Storage provides an abstraction over key-value style file storage.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)

	// WriteBatch applies all entries or none of them.
	WriteBatch(ctx context.Context, entries []Entry) error
}
