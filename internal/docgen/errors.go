package docgen

import (
	"errors"
)

// TransientError marks a failure worth retrying: transport errors, timeouts
// and 5xx-equivalent responses from the generation service.
type TransientError struct {
	error
}

func NewTransientError(err error) *TransientError {
	return &TransientError{err}
}

func (e *TransientError) Unwrap() error {
	return e.error
}

// PermanentError marks a failure that retrying cannot fix: the service
// rejected the input or returned something unusable.
type PermanentError struct {
	error
}

func NewPermanentError(err error) *PermanentError {
	return &PermanentError{err}
}

func (e *PermanentError) Unwrap() error {
	return e.error
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
