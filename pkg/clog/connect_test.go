package clog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/emptypb"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureDefaultLogger(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(NewAttributesHandler(slog.NewTextHandler(buf, nil))))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}

const (
	getTaskProcedure = "/dispatch.task.v1.TaskService/GetTask"
	healthProcedure  = "/grpc.health.v1.Health/Check"
)

func TestSlogConnectInterceptor(t *testing.T) {
	logs := captureDefaultLogger(t)
	interceptors := connect.WithInterceptors(NewSlogConnectInterceptor(WithConnectFilter(SkipHealthChecks)))

	mux := http.NewServeMux()
	mux.Handle(getTaskProcedure, connect.NewUnaryHandler(getTaskProcedure,
		func(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
			AddTaskID(ctx, "t1")
			return nil, connect.NewError(connect.CodeNotFound, errors.New("task not found"))
		}, interceptors))
	mux.Handle(healthProcedure, connect.NewUnaryHandler(healthProcedure,
		func(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
			return connect.NewResponse(&emptypb.Empty{}), nil
		}, interceptors))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	call := func(procedure string) error {
		client := connect.NewClient[emptypb.Empty, emptypb.Empty](srv.Client(), srv.URL+procedure)
		_, err := client.CallUnary(context.Background(), connect.NewRequest(&emptypb.Empty{}))
		return err
	}
	require.NoError(t, call(healthProcedure))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(call(getTaskProcedure)))

	out := logs.String()
	assert.Contains(t, out, "procedure="+getTaskProcedure)
	assert.Contains(t, out, "code=not_found")
	assert.Contains(t, out, "task_id=t1")
	assert.Contains(t, out, `msg="task not found"`)
	assert.NotContains(t, out, "grpc.health")
}

func TestSkipHealthChecks(t *testing.T) {
	assert.False(t, SkipHealthChecks(connect.Spec{Procedure: healthProcedure}))
	assert.False(t, SkipHealthChecks(connect.Spec{Procedure: "/grpc.health.v1.Health/Watch"}))
	assert.True(t, SkipHealthChecks(connect.Spec{Procedure: getTaskProcedure}))
}
