package clog

import (
	"context"
	"maps"
	"sync"
)

// Keys shared by every request log line.
const (
	ErrorAttributeKey      = "error.message"
	StackAttributeKey      = "error.stack"
	UserIDAttributeKey     = "user_id"
	TaskIDAttributeKey     = "task_id"
	AssigneeIDAttributeKey = "assignee_id"
)

// bag collects attributes while a request runs. AttributesHandler adds them
// to every record logged with the request's context.
type bag struct {
	mu    sync.RWMutex
	attrs map[string]any
}

type bagKey struct{}

func ContextWithSlog(ctx context.Context) context.Context {
	return context.WithValue(ctx, bagKey{}, &bag{attrs: make(map[string]any)})
}

func bagFrom(ctx context.Context) *bag {
	b, _ := ctx.Value(bagKey{}).(*bag)
	return b
}

// AddAttribute records key on the request in ctx. Without a request bag it
// does nothing.
func AddAttribute(ctx context.Context, key string, value any) {
	AddAttributes(ctx, map[string]any{key: value})
}

// AddAttributes merges attrs into the request bag. Nested maps are merged
// key by key.
func AddAttributes(ctx context.Context, attrs map[string]any) {
	b := bagFrom(ctx)
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	merge(b.attrs, attrs)
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		if cur, ok := dst[k].(map[string]any); ok {
			merge(cur, sub)
			continue
		}
		dst[k] = maps.Clone(sub)
	}
}

// GetAttributes returns a snapshot of the request bag, or nil without one.
func GetAttributes(ctx context.Context) map[string]any {
	b := bagFrom(ctx)
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.attrs)
}

func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func AddStack(ctx context.Context, stack string) {
	AddAttribute(ctx, StackAttributeKey, stack)
}

func AddUserID(ctx context.Context, userID string) {
	AddAttribute(ctx, UserIDAttributeKey, userID)
}

func AddTaskID(ctx context.Context, taskID string) {
	AddAttribute(ctx, TaskIDAttributeKey, taskID)
}
