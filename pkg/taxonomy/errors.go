package taxonomy

import (
	"errors"
	"fmt"
)

// ErrUnknownPath indicates a label path that does not exist in the tree.
var ErrUnknownPath = errors.New("unknown label path")

// PathError reports why a label path could not be resolved against a tree.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("label path %q: %s", e.Path, e.Reason)
}

func (e *PathError) Unwrap() error { return ErrUnknownPath }

func newPathError(path, format string, args ...interface{}) *PathError {
	return &PathError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
