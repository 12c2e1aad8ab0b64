package classifier

import "errors"

var (
	// ErrNotFitted is returned when prediction is attempted before Fit or
	// Load has populated the model.
	ErrNotFitted = errors.New("classifier is not fitted")

	// ErrNoExamples is returned by Fit when the training set is empty.
	ErrNoExamples = errors.New("no training examples")

	// ErrResolverUnavailable indicates a resolver whose backing service
	// could not be reached. Loading code treats this as a degradation,
	// not a failure: entities simply stay unresolved.
	ErrResolverUnavailable = errors.New("entity resolver unavailable")

	// ErrUnknownModel is returned by the registry for an unregistered
	// model type name.
	ErrUnknownModel = errors.New("unknown model type")
)
