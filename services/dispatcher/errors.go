package dispatcher

import (
	"errors"
	"fmt"
)

var (
	// ErrAllProvidersExhausted is returned when no provider has a usable
	// credential. No upstream call is made.
	ErrAllProvidersExhausted = errors.New("all providers exhausted: no provider has an available credential")

	// ErrEmptyResult is returned by the attempt loop when an adapter answers
	// without content; it is retried like any other transient failure.
	ErrEmptyResult = errors.New("provider returned an empty result")
)

// AllAttemptsFailedError is returned when the retry budget runs out. It
// wraps the last upstream error.
type AllAttemptsFailedError struct {
	Attempts int
	Err      error
}

func (e *AllAttemptsFailedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Err)
}

func (e *AllAttemptsFailedError) Unwrap() error {
	return e.Err
}
