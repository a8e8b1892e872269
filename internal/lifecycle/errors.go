package lifecycle

import (
	"fmt"

	"github.com/kazz187/dispatch/internal/task"
	"github.com/kazz187/dispatch/pkg/cerr"
)

func invalidState(t *task.Task, op string) error {
	return cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("cannot %s task in status %s", op, t.Status), nil)
}

func notAuthorized(actorID, op string) error {
	return cerr.NewError(cerr.PermissionDenied, fmt.Sprintf("user %q may not %s this task", actorID, op), nil)
}

func invalidArgument(msg, rule string) error {
	e := cerr.NewError(cerr.InvalidArgument, "invalid request", nil)
	return e.AddDetailMessageWithCode(msg, rule)
}

// IsNotFound reports an unknown task or executor.
func IsNotFound(err error) bool { return cerr.IsCode(err, cerr.NotFound) }

// IsInvalidState reports an operation attempted in a status that forbids it,
// including any operation on a completed or cancelled task.
func IsInvalidState(err error) bool { return cerr.IsCode(err, cerr.FailedPrecondition) }

// IsAuthorization reports an actor who is not allowed to perform the operation.
func IsAuthorization(err error) bool { return cerr.IsCode(err, cerr.PermissionDenied) }

func IsInvalidArgument(err error) bool { return cerr.IsCode(err, cerr.InvalidArgument) }
