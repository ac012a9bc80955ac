package calendar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jw6ventures/planner/internal/validation"
)

// ErrValidation marks rejected input on the write path.
var ErrValidation = validation.ErrInvalid

// ErrMalformedEvents is matched by MalformedEventsError.
var ErrMalformedEvents = errors.New("stored events have malformed dates")

// MalformedEventsError is returned under the fail policy when a query met
// records whose start date could not be parsed.
type MalformedEventsError struct {
	IDs []string
}

func (e *MalformedEventsError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMalformedEvents, strings.Join(e.IDs, ", "))
}

func (e *MalformedEventsError) Is(target error) bool {
	return target == ErrMalformedEvents
}
