package cerr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"connectrpc.com/connect"
	"google.golang.org/protobuf/proto"

	"github.com/kazz187/dispatch/pkg/clog"
)

type Error struct {
	Code    Code
	Msg     string          // returned to the caller together with Code
	Err     error           // logged, never returned to the caller
	Stack   string
	Details []proto.Message // returned to the caller
}

// NewError builds an Error. Codes logged at error level capture the stack.
func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if clog.ConnectCodeLevel(code.ConnectCode()) >= slog.LevelError {
		stack := make([]byte, 2048)
		n := runtime.Stack(stack, false)
		err.Stack = string(stack[:n])
	}
	return err
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code.String(), e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AddDetailMessageWithCode attaches a violation with a machine readable rule
// id, e.g. "title.required".
func (e *Error) AddDetailMessageWithCode(msg string, code string) error {
	e.Details = append(e.Details, &validate.Violation{Message: &msg, RuleId: &code})
	return e
}

func (e *Error) ConnectError() *connect.Error {
	connectErr := connect.NewError(e.Code.ConnectCode(), errors.New(e.Msg))
	for _, detailMsg := range e.Details {
		detail, err := connect.NewErrorDetail(detailMsg)
		if err != nil {
			continue
		}
		connectErr.AddDetail(detail)
	}
	return connectErr
}

func (e *Error) httpError() httpError {
	he := httpError{Code: e.Code.String(), Message: e.Msg}
	for _, d := range e.Details {
		v, ok := d.(*validate.Violation)
		if !ok {
			continue
		}
		he.Details = append(he.Details, httpErrorDetail{
			RuleID:  v.GetRuleId(),
			Message: v.GetMessage(),
		})
	}
	return he
}

// normalize turns any handler error into an *Error and records it on the
// request log. A client that went away is reported as canceled.
func normalize(ctx context.Context, err error) *Error {
	if errors.Is(err, context.Canceled) {
		return NewError(Canceled, "connection closed", err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.Err == "operation was canceled" {
		return NewError(Canceled, "connection closed", err)
	}

	clog.AddError(ctx, err)
	var cerr *Error
	if !errors.As(err, &cerr) {
		cerr = NewError(Unknown, "unknown error", err)
	}
	if cerr.Stack != "" {
		clog.AddStack(ctx, cerr.Stack)
	}
	return cerr
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}
