// Package request holds the small pieces every JSON handler needs.
package request

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kazz187/dispatch/pkg/cerr"
	"github.com/kazz187/dispatch/pkg/clog"
)

// UserIDHeader identifies the acting user.
const UserIDHeader = "X-User-Id"

const maxBodyBytes = 1 << 20

// UserID returns the acting user of r.
func UserID(r *http.Request) (string, error) {
	id := r.Header.Get(UserIDHeader)
	if id == "" {
		return "", cerr.NewError(cerr.Unauthenticated, fmt.Sprintf("%s header is required", UserIDHeader), nil)
	}
	clog.AddUserID(r.Context(), id)
	return id, nil
}

// DecodeJSON reads r's body into v.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid request body", err)
	}
	return nil
}
