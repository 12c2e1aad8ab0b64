package markup

import (
	"errors"
	"fmt"
)

// ErrMalformed indicates annotated text that could not be parsed.
var ErrMalformed = errors.New("malformed markup")

// ParseError describes a markup parse failure at a rune position.
type ParseError struct {
	Position int
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("markup parse error at %d: %s", e.Position, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrMalformed }

func newParseError(pos int, format string, args ...interface{}) *ParseError {
	return &ParseError{Position: pos, Reason: fmt.Sprintf(format, args...)}
}
