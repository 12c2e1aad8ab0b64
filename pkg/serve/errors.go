package serve

import (
	"context"
	"errors"
	"fmt"

	"github.com/wehubfusion/Delphi/pkg/nlp"
)

var (
	// ErrNotConnected indicates the client is not connected to NATS.
	ErrNotConnected = errors.New("not connected to NATS")

	// ErrInvalidSubject indicates an empty or malformed subject.
	ErrInvalidSubject = errors.New("invalid subject")

	// ErrInvalidRequest indicates a nil or undecodable request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrPublishFailed indicates a response could not be published after
	// all retries.
	ErrPublishFailed = errors.New("publish failed")
)

// Error is a structured serving error with a machine-readable code.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a structured serving error wrapping err.
func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Error codes attached to failed responses.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeNotReady       = "ENGINE_NOT_READY"
	CodeNoAllowedLabel = "NO_ALLOWED_LABEL"
	CodeTimeout        = "PROCESS_TIMEOUT"
	CodeInternal       = "INTERNAL_ERROR"
)

// classify maps a processing error to a response code and whether
// redelivering the request could succeed. Malformed requests and label
// restrictions outside the loaded taxonomy never succeed on retry; an
// engine without models or a timeout may, on this replica or another.
func classify(err error) (code string, retryable bool) {
	switch {
	case errors.Is(err, nlp.ErrInvalidArgument), errors.Is(err, nlp.ErrUnknownLabelPath), errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest, false
	case errors.Is(err, nlp.ErrAllowedClassesNotFound):
		return CodeNoAllowedLabel, false
	case errors.Is(err, nlp.ErrNotReady):
		return CodeNotReady, true
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout, true
	default:
		return CodeInternal, true
	}
}
