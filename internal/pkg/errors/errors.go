package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupportedFile marks uploads whose name has no ingestible extension.
	ErrUnsupportedFile = errors.New("unsupported file type")
)
