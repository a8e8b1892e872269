package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/dispatch/internal/executor"
	"github.com/kazz187/dispatch/pkg/cerr"
	"github.com/kazz187/dispatch/pkg/storage"
)

const executorsPrefix = "executors"

type YAMLRepository struct {
	storage storage.Storage
}

var _ executor.Repository = (*YAMLRepository)(nil)

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", executorsPrefix, id)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*executor.Executor, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("executor", err)
	}
	var e executor.Executor
	if err := yaml.Unmarshal(data, &e); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal executor %s: %w", id, err))
	}
	return &e, nil
}

func (r *YAMLRepository) List(ctx context.Context) ([]*executor.Executor, error) {
	paths, err := r.storage.List(ctx, executorsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("executors", err)
	}

	var out []*executor.Executor
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable executor record", "path", p, "error", err)
			continue
		}
		var e executor.Executor
		if err := yaml.Unmarshal(data, &e); err != nil {
			slog.WarnContext(ctx, "skipping malformed executor record", "path", p, "error", err)
			continue
		}
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *YAMLRepository) Save(ctx context.Context, e *executor.Executor) error {
	if e.ID == "" {
		return cerr.NewError(cerr.InvalidArgument, "executor id is required", nil)
	}
	data, err := yaml.Marshal(e)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal executor: %w", err))
	}
	if err := r.storage.Write(ctx, path(e.ID), data); err != nil {
		return cerr.WrapStorageWriteError("executor", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("executor", err)
	}
	return nil
}
