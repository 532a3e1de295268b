package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is returned when a request fails validation before any
// store access.  Handlers should translate this into an HTTP 400 response.
var ErrInvalidRequest = errors.New("invalid request")

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// HoldConflictError reports the requested resources that were held or
// booked by someone else at hold time.  Nothing was held.
type HoldConflictError struct {
	ConflictingIDs []string
}

func (e *HoldConflictError) Error() string {
	return "resources unavailable: " + strings.Join(e.ConflictingIDs, ", ")
}
