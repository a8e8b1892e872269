package clog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/proto"
)

type connectConfig struct {
	filter func(connect.Spec) bool
}

type ConnectOption func(*connectConfig)

// WithConnectFilter logs only the calls filter accepts.
func WithConnectFilter(filter func(connect.Spec) bool) ConnectOption {
	return func(cfg *connectConfig) {
		cfg.filter = filter
	}
}

const healthServicePrefix = "/grpc.health.v1.Health/"

// SkipHealthChecks rejects the grpc health service, which load balancers
// poll every few seconds.
func SkipHealthChecks(spec connect.Spec) bool {
	return !strings.HasPrefix(spec.Procedure, healthServicePrefix)
}

type connectInterceptor struct {
	cfg connectConfig
}

// NewSlogConnectInterceptor gives every call its own attribute bag and logs
// the call once it finishes.
func NewSlogConnectInterceptor(opts ...ConnectOption) connect.Interceptor {
	i := &connectInterceptor{}
	for _, opt := range opts {
		opt(&i.cfg)
	}
	return i
}

func (i *connectInterceptor) begin(ctx context.Context, spec connect.Spec, method string) context.Context {
	ctx = ContextWithSlog(ctx)
	attrs := map[string]any{
		"procedure":   spec.Procedure,
		"stream_type": spec.StreamType.String(),
	}
	if method != "" {
		attrs["method"] = method
	}
	AddAttributes(ctx, attrs)
	return ctx
}

func (i *connectInterceptor) finish(ctx context.Context, spec connect.Spec, start time.Time, err error) {
	if i.cfg.filter != nil && !i.cfg.filter(spec) {
		return
	}
	code := "ok"
	var cerr *connect.Error
	if err != nil {
		if !errors.As(err, &cerr) {
			cerr = connect.NewError(connect.CodeUnknown, err)
		}
		code = cerr.Code().String()
	}
	AddAttributes(ctx, map[string]any{
		"code":     code,
		"duration": time.Since(start),
	})
	if cerr == nil {
		slog.InfoContext(ctx, "Finished")
		return
	}
	if details := cerr.Details(); len(details) > 0 {
		msgs := make([]proto.Message, 0, len(details))
		for _, d := range details {
			v, err := d.Value()
			if err != nil {
				slog.ErrorContext(ctx, "failed to decode error detail", ErrorAttributeKey, err)
				continue
			}
			msgs = append(msgs, v)
		}
		AddAttribute(ctx, "err_details", msgs)
	}
	slog.Log(ctx, ConnectCodeLevel(cerr.Code()), cerr.Message())
}

func (i *connectInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()
		ctx = i.begin(ctx, req.Spec(), req.HTTPMethod())
		resp, err := next(ctx, req)
		i.finish(ctx, req.Spec(), start, err)
		return resp, err
	}
}

func (i *connectInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *connectInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		ctx = i.begin(ctx, conn.Spec(), "")
		err := next(ctx, conn)
		i.finish(ctx, conn.Spec(), start, err)
		return err
	}
}
