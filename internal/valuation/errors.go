package valuation

import (
	"errors"
	"fmt"
)

// ErrNoComps is returned when filtering leaves no usable PPSF samples.
var ErrNoComps = errors.New("no valid comps after filtering")

// MissingFieldError reports a subject field the engine cannot value without.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("subject is missing %s; cannot compute ARV", e.Field)
}
