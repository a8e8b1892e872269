package storage

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
)

// Batch stages writes on top of a base Storage. Reads observe the staged
// state; nothing reaches the base until Commit.
type Batch struct {
	base Storage

	mu      sync.Mutex
	order   []string
	pending map[string]Entry
}

var _ Storage = (*Batch)(nil)

func NewBatch(base Storage) *Batch {
	return &Batch{
		base:    base,
		pending: make(map[string]Entry),
	}
}

func (b *Batch) stage(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[e.Path]; !ok {
		b.order = append(b.order, e.Path)
	}
	b.pending[e.Path] = e
}

func (b *Batch) lookup(p string) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.pending[p]
	return e, ok
}

func (b *Batch) Read(ctx context.Context, p string) ([]byte, error) {
	if e, ok := b.lookup(p); ok {
		if e.Delete {
			return nil, ErrNotFound
		}
		out := make([]byte, len(e.Data))
		copy(out, e.Data)
		return out, nil
	}
	return b.base.Read(ctx, p)
}

func (b *Batch) Write(_ context.Context, p string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	b.stage(Entry{Path: p, Data: buf})
	return nil
}

func (b *Batch) Delete(ctx context.Context, p string) error {
	exists, err := b.Exists(ctx, p)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	b.stage(Entry{Path: p, Delete: true})
	return nil
}

func (b *Batch) List(ctx context.Context, prefix string) ([]string, error) {
	paths, err := b.base.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	dir := strings.TrimSuffix(strings.TrimPrefix(prefix, "/"), "/")

	b.mu.Lock()
	for p, e := range b.pending {
		if path.Dir(p) != dir {
			continue
		}
		if e.Delete {
			delete(set, p)
		} else {
			set[p] = struct{}{}
		}
	}
	b.mu.Unlock()

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (b *Batch) Exists(ctx context.Context, p string) (bool, error) {
	if e, ok := b.lookup(p); ok {
		return !e.Delete, nil
	}
	return b.base.Exists(ctx, p)
}

// WriteBatch stages entries into this batch.
func (b *Batch) WriteBatch(_ context.Context, entries []Entry) error {
	for _, e := range entries {
		b.stage(e)
	}
	return nil
}

// Entries returns the staged mutations in first-write order.
func (b *Batch) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, 0, len(b.order))
	for _, p := range b.order {
		out = append(out, b.pending[p])
	}
	return out
}

// Commit applies all staged entries to the base storage atomically.
func (b *Batch) Commit(ctx context.Context) error {
	entries := b.Entries()
	if len(entries) == 0 {
		return nil
	}
	return b.base.WriteBatch(ctx, entries)
}
