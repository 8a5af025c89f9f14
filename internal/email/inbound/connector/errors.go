package connector

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks a session that already failed for the remainder of the run.
var ErrUnavailable = errors.New("server unavailable for this run")

// ConnectionError reports a server that could not be reached, authenticated or kept alive.
type ConnectionError struct {
	Server string
	Op     string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Server, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransientError reports a failed probe or command on an otherwise established session.
type TransientError struct {
	Server string
	Op     string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %s (transient): %v", e.Server, e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err means the server is unusable for this run.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
