package ingest

import (
	"errors"
	"fmt"
)

// ErrUnauthorized means the caller has neither a session nor a valid API
// key and trusted mode is off.
var ErrUnauthorized = errors.New("caller is not authorized to submit events")

// ValidationError describes a malformed envelope.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
