package dispatch

import "errors"

var (
	// ErrUnknownInstance is returned for a task addressing an instance ID
	// that is not registered.
	ErrUnknownInstance = errors.New("unknown instance")

	// ErrUnsupportedTask is returned when the addressed instance does not
	// implement the capability a task kind requires.
	ErrUnsupportedTask = errors.New("instance does not support task")

	// ErrDispatcherClosed is returned by Run after Close.
	ErrDispatcherClosed = errors.New("dispatcher is closed")
)
