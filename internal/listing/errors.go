package listing

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned before any network call when no RapidAPI key is configured.
var ErrMissingAPIKey = errors.New("RAPIDAPI_KEY not set in environment")

// DataValidationError reports an upstream or cached payload that does not
// have the expected shape.
type DataValidationError struct {
	Op  string
	Err error
}

func (e *DataValidationError) Error() string {
	return fmt.Sprintf("failed to validate %s: %v", e.Op, e.Err)
}

func (e *DataValidationError) Unwrap() error {
	return e.Err
}

// HTTPError is a non-2xx upstream response that survived retries.
type HTTPError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("listings API %s returned status %d", e.Path, e.StatusCode)
}

func invalid(op, format string, args ...any) error {
	return &DataValidationError{Op: op, Err: fmt.Errorf(format, args...)}
}
