// Package roster seeds the team's executors from a YAML file and keeps them
// in sync when the file changes.
package roster

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/dispatch/internal/executor"
	"github.com/kazz187/dispatch/internal/store"
	"github.com/kazz187/dispatch/pkg/cerr"
)

const defaultMaxConcurrentTasks = 3

type Entry struct {
	ID                 string   `yaml:"id"`
	Name               string   `yaml:"name"`
	Role               string   `yaml:"role"`
	Skills             []string `yaml:"skills"`
	MaxConcurrentTasks int      `yaml:"max_concurrent_tasks"`
}

type File struct {
	Executors []Entry `yaml:"executors"`
}

// Parse decodes and validates a roster document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "invalid roster yaml", err)
	}
	seen := make(map[string]bool, len(f.Executors))
	for i := range f.Executors {
		e := &f.Executors[i]
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("roster entry %d has no id", i), nil)
		}
		if seen[e.ID] {
			return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("duplicate roster id %q", e.ID), nil)
		}
		seen[e.ID] = true
		if e.MaxConcurrentTasks <= 0 {
			e.MaxConcurrentTasks = defaultMaxConcurrentTasks
		}
		for j, s := range e.Skills {
			e.Skills[j] = strings.ToLower(strings.TrimSpace(s))
		}
	}
	return &f, nil
}

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster %s: %w", path, err)
	}
	return Parse(data)
}

// Apply writes the roster into the store in one transaction. Profile fields
// come from the file; current task ids are kept from the stored record.
// Executors missing from the file are removed unless they still hold tasks.
func Apply(ctx context.Context, st *store.Store, f *File) error {
	return st.Tx(ctx, func(ctx context.Context, r *store.Repos) error {
		existing, err := r.Executors.List(ctx)
		if err != nil {
			return err
		}
		byID := make(map[string]*executor.Executor, len(existing))
		for _, e := range existing {
			byID[e.ID] = e
		}

		for _, entry := range f.Executors {
			e := &executor.Executor{
				ID:                 entry.ID,
				Name:               entry.Name,
				Role:               entry.Role,
				Skills:             slices.Clone(entry.Skills),
				MaxConcurrentTasks: entry.MaxConcurrentTasks,
			}
			if prev, ok := byID[entry.ID]; ok {
				e.CurrentTaskIDs = prev.CurrentTaskIDs
				delete(byID, entry.ID)
			}
			if e.Load() > e.MaxConcurrentTasks {
				slog.WarnContext(ctx, "roster capacity below current load", "executor_id", e.ID, "load", e.Load(), "max", e.MaxConcurrentTasks)
			}
			if err := r.Executors.Save(ctx, e); err != nil {
				return err
			}
		}

		for id, e := range byID {
			if e.Load() > 0 {
				slog.WarnContext(ctx, "executor removed from roster still has active tasks, keeping", "executor_id", id, "load", e.Load())
				continue
			}
			if err := r.Executors.Delete(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Sync loads path and applies it. It returns the file hash so callers can
// skip reloads when content is unchanged.
func Sync(ctx context.Context, st *store.Store, path string) ([sha256.Size]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("failed to read roster %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	if err := Apply(ctx, st, f); err != nil {
		return [sha256.Size]byte{}, err
	}
	slog.InfoContext(ctx, "roster loaded", "path", path, "executors", len(f.Executors))
	return sha256.Sum256(data), nil
}
