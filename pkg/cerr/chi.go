package cerr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kazz187/dispatch/pkg/clog"
)

// reply holds what a handler wants written. Handlers never write the body
// themselves; NewJSONResponseChiMiddleware writes it once they return.
type reply struct {
	body any
	err  error
}

type replyKey struct{}

func replyFrom(ctx context.Context) *reply {
	rp, _ := ctx.Value(replyKey{}).(*reply)
	return rp
}

func SetJSONResponse(ctx context.Context, body any) {
	if rp := replyFrom(ctx); rp != nil {
		rp.body = body
	}
}

func SetJSONError(ctx context.Context, err error) {
	if rp := replyFrom(ctx); rp != nil {
		rp.err = err
	}
}

func SetNewJSONError(ctx context.Context, code Code, msg string, err error) {
	SetJSONError(ctx, NewError(code, msg, err))
}

// NewJSONResponseChiMiddleware writes the JSON body or error set by the
// handler. Errors that are not *Error are reported as unknown.
func NewJSONResponseChiMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rp := &reply{}
			ctx := context.WithValue(r.Context(), replyKey{}, rp)
			next.ServeHTTP(w, r.WithContext(ctx))
			if rp.err != nil {
				writeJSON(ctx, w, normalize(ctx, rp.err))
				return
			}
			writeJSON(ctx, w, rp.body)
		})
	}
}

type httpErrorDetail struct {
	RuleID  string `json:"rule_id,omitempty"`
	Message string `json:"message"`
}

type httpError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details []httpErrorDetail `json:"details,omitempty"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, body any) {
	status := http.StatusOK
	e, isErr := body.(*Error)
	if isErr {
		status = e.Code.HTTPCode()
		body = e.httpError()
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		if !isErr {
			writeJSON(ctx, w, NewError(Internal, "server error", err))
			return
		}
		clog.AddError(ctx, errors.Join(e, err))
		buf = bytes.NewBufferString(`{"code":"internal","message":"server error"}` + "\n")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		clog.AddError(ctx, NewError(Internal, "failed to write response", err))
	}
}
