package cerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/kazz187/dispatch/pkg/clog"
)

func TestErrorInterceptor_Unary(t *testing.T) {
	invalid := NewError(InvalidArgument, "invalid request", nil)
	_ = invalid.AddDetailMessageWithCode("assignee is required", "assignee_id.required")

	tests := []struct {
		name        string
		err         error
		wantCode    connect.Code
		wantMsg     string
		wantDetails int
	}{
		{"dispatch error", fmt.Errorf("reassign: %w", invalid), connect.CodeInvalidArgument, "invalid request", 1},
		{"plain", errors.New("disk full"), connect.CodeUnknown, "unknown error", 0},
		{"canceled", context.Canceled, connect.CodeCanceled, "connection closed", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := clog.ContextWithSlog(context.Background())
			unary := NewErrorInterceptor().WrapUnary(func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) {
				return nil, tt.err
			})
			_, err := unary(ctx, connect.NewRequest(&emptypb.Empty{}))

			var cerr *connect.Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.wantCode, cerr.Code())
			assert.Equal(t, tt.wantMsg, cerr.Message())
			assert.Len(t, cerr.Details(), tt.wantDetails)
		})
	}
}

func TestErrorInterceptor_PassesSuccess(t *testing.T) {
	want := connect.NewResponse(&emptypb.Empty{})
	unary := NewErrorInterceptor().WrapUnary(func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) {
		return want, nil
	})
	got, err := unary(context.Background(), connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestNormalize_RecordsErrorOnRequestLog(t *testing.T) {
	ctx := clog.ContextWithSlog(context.Background())
	e := normalize(ctx, NewError(Internal, "server error", errors.New("disk full")))
	assert.Equal(t, Internal, e.Code)
	attrs := clog.GetAttributes(ctx)
	assert.Contains(t, attrs, clog.ErrorAttributeKey)
	assert.NotEmpty(t, attrs[clog.StackAttributeKey])
}
