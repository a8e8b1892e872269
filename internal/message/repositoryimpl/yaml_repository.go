package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/dispatch/internal/message"
	"github.com/kazz187/dispatch/pkg/cerr"
	"github.com/kazz187/dispatch/pkg/storage"
)

const messagesPrefix = "messages"

type YAMLRepository struct {
	storage storage.Storage
}

var _ message.Repository = (*YAMLRepository)(nil)

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func threadPrefix(taskID string) string {
	return fmt.Sprintf("%s/%s", messagesPrefix, taskID)
}

func path(taskID, id string) string {
	return fmt.Sprintf("%s/%s.yaml", threadPrefix(taskID), id)
}

func (r *YAMLRepository) Create(ctx context.Context, m *message.Message) error {
	if m.TaskID == "" || m.ID == "" {
		return cerr.NewError(cerr.InvalidArgument, "message id and task id are required", nil)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal message: %w", err))
	}
	if err := r.storage.Write(ctx, path(m.TaskID, m.ID), data); err != nil {
		return cerr.WrapStorageWriteError("message", err)
	}
	return nil
}

func (r *YAMLRepository) List(ctx context.Context, taskID string) ([]*message.Message, error) {
	paths, err := r.storage.List(ctx, threadPrefix(taskID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("messages", err)
	}

	var out []*message.Message
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable message", "path", p, "error", err)
			continue
		}
		var m message.Message
		if err := yaml.Unmarshal(data, &m); err != nil {
			slog.WarnContext(ctx, "skipping malformed message", "path", p, "error", err)
			continue
		}
		out = append(out, &m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
