package nlp

import (
	"errors"

	"github.com/wehubfusion/Delphi/pkg/taxonomy"
)

var (
	// ErrNotReady is returned when processing is attempted before the
	// engine's models have been built or loaded.
	ErrNotReady = errors.New("engine is not ready, build or load models first")

	// ErrAllowedClassesNotFound is returned when a label restriction
	// matches nothing in the classifier's ranked predictions.
	ErrAllowedClassesNotFound = errors.New("no allowed label found in the ranked predictions")

	// ErrInvalidArgument is returned for malformed processing requests,
	// such as supplying a path restriction and a selection together.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownLabelPath aliases the taxonomy sentinel so callers can
	// match restriction failures without importing that package.
	ErrUnknownLabelPath = taxonomy.ErrUnknownPath
)
