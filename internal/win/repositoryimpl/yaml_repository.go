package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/dispatch/internal/win"
	"github.com/kazz187/dispatch/pkg/cerr"
	"github.com/kazz187/dispatch/pkg/storage"
)

const winsPrefix = "wins"

type YAMLRepository struct {
	storage storage.Storage
}

var _ win.Repository = (*YAMLRepository)(nil)

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(taskID string) string {
	return fmt.Sprintf("%s/%s.yaml", winsPrefix, taskID)
}

func (r *YAMLRepository) Create(ctx context.Context, w *win.Win) error {
	exists, err := r.storage.Exists(ctx, path(w.TaskID))
	if err != nil {
		return cerr.WrapStorageWriteError("win", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "win already recorded", nil)
	}
	return r.write(ctx, w)
}

func (r *YAMLRepository) Get(ctx context.Context, taskID string) (*win.Win, error) {
	data, err := r.storage.Read(ctx, path(taskID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("win", err)
	}
	var w win.Win
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal win %s: %w", taskID, err))
	}
	return &w, nil
}

func (r *YAMLRepository) Update(ctx context.Context, w *win.Win) error {
	exists, err := r.storage.Exists(ctx, path(w.TaskID))
	if err != nil {
		return cerr.WrapStorageWriteError("win", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "win not found", nil)
	}
	return r.write(ctx, w)
}

func (r *YAMLRepository) write(ctx context.Context, w *win.Win) error {
	data, err := yaml.Marshal(w)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal win: %w", err))
	}
	if err := r.storage.Write(ctx, path(w.TaskID), data); err != nil {
		return cerr.WrapStorageWriteError("win", err)
	}
	return nil
}

func (r *YAMLRepository) List(ctx context.Context, limit int) ([]*win.Win, error) {
	paths, err := r.storage.List(ctx, winsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("wins", err)
	}

	var all []*win.Win
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable win", "path", p, "error", err)
			continue
		}
		var w win.Win
		if err := yaml.Unmarshal(data, &w); err != nil {
			slog.WarnContext(ctx, "skipping malformed win", "path", p, "error", err)
			continue
		}
		all = append(all, &w)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CompletedAt.After(all[j].CompletedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
