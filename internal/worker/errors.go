package worker

import "errors"

var (
	// ErrUnknownMethod is returned when a job names a method the module
	// never registered during Init.
	ErrUnknownMethod = errors.New("unknown method")
)
