package registry

import "fmt"

// NonRetryableError marks a row the publisher must dead-letter instead of
// retrying. Malformed rows never heal on their own.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable outbox error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func rejectf(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}
