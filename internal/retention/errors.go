package retention

import (
	"errors"
	"fmt"
)

var (
	// ErrRunInProgress means another anonymize or purge run holds the lock.
	ErrRunInProgress = errors.New("a retention run is already in progress")

	ErrEmptySubject = errors.New("subject id is required")
)

// PartialFailure reports an operation that stopped part way. Counts holds
// what was committed before the failure; those rows stay processed.
type PartialFailure struct {
	Operation Operation
	Entity    string
	Counts    Counts
	Err       error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s stopped on %s after processing %s: %v", e.Operation, e.Entity, e.Counts, e.Err)
}

func (e *PartialFailure) Unwrap() error {
	return e.Err
}
