package scripted

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

var (
	// ErrNoScript is returned when fitting with an empty Script or loading
	// an artifact without one.
	ErrNoScript = errors.New("no script configured")

	// ErrEvalTimeout is returned when a script runs past the configured
	// timeout and is interrupted.
	ErrEvalTimeout = errors.New("script evaluation timed out")

	// ErrBadResult is returned when the script's completion value is not an
	// object of label scores.
	ErrBadResult = errors.New("script result is not a label score object")
)

// ScriptError reports a failure inside the script, either a compile error
// or a thrown exception.
type ScriptError struct {
	Message string
	err     error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script error: %s", e.Message)
}

func (e *ScriptError) Unwrap() error { return e.err }

// wrapScriptError converts goja compile and runtime failures into
// ScriptError, leaving other errors untouched.
func wrapScriptError(err error) error {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return &ScriptError{Message: exc.Error(), err: err}
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &ScriptError{Message: syntax.Error(), err: err}
	}
	return err
}
