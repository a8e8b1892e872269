package cerr

import (
	"context"

	"connectrpc.com/connect"
)

type errorInterceptor struct{}

// NewErrorInterceptor converts handler errors into connect errors carrying
// the code, message and details of the *Error.
func NewErrorInterceptor() connect.Interceptor {
	return errorInterceptor{}
}

func (errorInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		resp, err := next(ctx, req)
		if err == nil {
			return resp, nil
		}
		return resp, normalize(ctx, err).ConnectError()
	}
}

func (errorInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (errorInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := next(ctx, conn); err != nil {
			return normalize(ctx, err).ConnectError()
		}
		return nil
	}
}
