package scenario

import (
	"errors"
	"fmt"
)

// Status is the outcome of a step or scenario.
type Status string

// Outcomes. A pending step is not a failure: it marks a step whose
// precondition for being meaningful is absent on this board.
const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
	StatusSkipped Status = "skipped"
)

// Result is the tagged outcome of a step. Reason is set for failed and
// pending results.
type Result struct {
	Status Status
	Reason string
}

// Passed returns a passing result.
func Passed() Result { return Result{Status: StatusPassed} }

// Failed returns a failing result.
func Failed(reason string) Result { return Result{Status: StatusFailed, Reason: reason} }

// PendingResult returns a pending result.
func PendingResult(reason string) Result { return Result{Status: StatusPending, Reason: reason} }

// Skipped returns the result given to steps after a failed or pending one.
func Skipped() Result { return Result{Status: StatusSkipped} }

// PendingError is returned by a step to mark itself pending.
type PendingError struct {
	Reason string
}

func (e *PendingError) Error() string {
	return "pending: " + e.Reason
}

// Pending returns an error that makes the runner report the step as
// pending instead of failed.
func Pending(format string, args ...any) error {
	return &PendingError{Reason: fmt.Sprintf(format, args...)}
}

// IsPending reports whether err marks a step as pending.
func IsPending(err error) bool {
	var pe *PendingError
	return errors.As(err, &pe)
}

// ResultOf converts a step's error into a Result.
func ResultOf(err error) Result {
	if err == nil {
		return Passed()
	}
	var pe *PendingError
	if errors.As(err, &pe) {
		return PendingResult(pe.Reason)
	}
	return Failed(err.Error())
}
