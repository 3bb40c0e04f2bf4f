package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRequestType is returned through a future when no handler is
	// registered for the submitted request type.
	ErrUnknownRequestType = errors.New("no handler registered for request type")

	// ErrTimeout is returned by ResultFuture.Await when the deadline passes.
	// The underlying work keeps running; only the waiter gives up.
	ErrTimeout = errors.New("timed out waiting for result")

	// ErrBridgeClosed is returned by SubmitRequest after Shutdown has been
	// called.
	ErrBridgeClosed = errors.New("bridge has been shut down")
)

// HandlerExecutionError wraps an error (or recovered panic) raised by a
// handler, keeping the request identifiers for correlation.
type HandlerExecutionError struct {
	RequestType string
	RequestID   string
	Err         error
}

func (e *HandlerExecutionError) Error() string {
	return fmt.Sprintf("handler for %q failed (request %s): %v", e.RequestType, e.RequestID, e.Err)
}

func (e *HandlerExecutionError) Unwrap() error {
	return e.Err
}
