package clog

import (
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
)

// StatusClientClosedRequest is logged when the client went away first.
const StatusClientClosedRequest = 499

// HTTPStatusLevel picks the level a finished request is logged at. Client
// errors are warnings, server errors are errors.
func HTTPStatusLevel(status int) slog.Level {
	switch {
	case status == StatusClientClosedRequest:
		return slog.LevelInfo
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case status >= 100:
		return slog.LevelInfo
	}
	return slog.LevelError
}

// ConnectCodeLevel picks the level a failed call is logged at. Codes caused
// by the caller are info; codes that point at the server are errors.
func ConnectCodeLevel(code connect.Code) slog.Level {
	switch code {
	case connect.CodeCanceled,
		connect.CodeInvalidArgument,
		connect.CodeDeadlineExceeded,
		connect.CodeNotFound,
		connect.CodeAlreadyExists,
		connect.CodePermissionDenied,
		connect.CodeFailedPrecondition,
		connect.CodeAborted,
		connect.CodeOutOfRange,
		connect.CodeUnauthenticated:
		return slog.LevelInfo
	}
	return slog.LevelError
}
