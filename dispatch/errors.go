package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrQueryNotFound   = errors.New("query not found")
	ErrAlreadyStarted  = errors.New("query already started")
	ErrCancelTimeout   = errors.New("cancel not acknowledged before deadline")
	ErrTransportClosed = errors.New("transport is closed")
)

// StartError reports a failure to launch a query on the transport.
type StartError struct {
	Cause     error
	Workspace string
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start query in %q: %v", e.Workspace, e.Cause)
}

func (e *StartError) Unwrap() error {
	return e.Cause
}

// QueryError reports a query that finished with a non-zero completion code.
type QueryError struct {
	QueryID string
	Code    int
	Stderr  string
}

func (e *QueryError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("query %s exited with code %d: %s", e.QueryID, e.Code, e.Stderr)
	}
	return fmt.Sprintf("query %s exited with code %d", e.QueryID, e.Code)
}
