package remote

import (
	"errors"
	"fmt"
)

// NetworkError indicates the remote service could not be reached: DNS
// failure, refused connection, timeout. Retryable; the queue's attempt
// counter decides when to give up.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RejectionError indicates the server answered but refused the operation
// (validation failure, conflict). Retryable up to the attempt ceiling, then
// terminal.
type RejectionError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RejectionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote rejected request: %s (%s, HTTP %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("remote rejected request: %s (HTTP %d)", e.Message, e.StatusCode)
}

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsRejection reports whether err is (or wraps) a RejectionError.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}
