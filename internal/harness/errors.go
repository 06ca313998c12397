package harness

import (
	"errors"
	"fmt"

	"github.com/roach88/settle/internal/driver"
)

// Abort reasons.
const (
	AbortNavigation = "navigation"
	AbortCancelled  = "cancelled"
	AbortSession    = "session"
)

// AbortError means the run stopped before every case got a verdict.
type AbortError struct {
	// Reason is AbortNavigation, AbortCancelled or AbortSession.
	Reason string

	// CaseID is the case that was about to run, if any.
	CaseID string

	Err error
}

func (e *AbortError) Error() string {
	if e.CaseID != "" {
		return fmt.Sprintf("run aborted (%s) before %s: %v", e.Reason, e.CaseID, e.Err)
	}
	return fmt.Sprintf("run aborted (%s): %v", e.Reason, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// IsAborted returns true if err is a run abort.
// Uses errors.As to handle wrapped errors.
func IsAborted(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}

func abortFor(caseID string, err error) *AbortError {
	reason := AbortCancelled
	if driver.IsNavigationError(err) {
		reason = AbortNavigation
	}
	return &AbortError{Reason: reason, CaseID: caseID, Err: err}
}
