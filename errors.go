package stepper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum-optimism/infra/op-stepper/runner"
	"github.com/ethereum-optimism/infra/op-stepper/types"
)

// maxListedCases caps the case keys named in a failure message
const maxListedCases = 5

// RuntimeError is an operational error and leads to exit code 2: bad configuration,
// an unusable driver pool, or a run that was aborted. RunID is set when a run had started.
type RuntimeError struct {
	RunID string
	Err   error
}

func (e *RuntimeError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("runtime error in run %s: %v", e.RunID, e.Err)
	}
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// newRunError ties a runtime error to the run it aborted. result may be nil.
func newRunError(result *runner.RunResult, err error) *RuntimeError {
	e := NewRuntimeError(err)
	if result != nil {
		e.RunID = result.RunID
	}
	return e
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError means the run completed but at least one case did not pass (exit code 1)
type TestFailureError struct {
	RunID   string
	Status  types.Status
	Total   int
	Failing []string // keys of the cases that did not pass, sorted
}

func (e *TestFailureError) Error() string {
	listed := e.Failing
	more := 0
	if len(listed) > maxListedCases {
		more = len(listed) - maxListedCases
		listed = listed[:maxListedCases]
	}
	msg := fmt.Sprintf("run %s finished with status %s: %d of %d cases failed", e.RunID, e.Status, len(e.Failing), e.Total)
	if len(listed) > 0 {
		msg += " (" + strings.Join(listed, ", ")
		if more > 0 {
			msg += fmt.Sprintf(" and %d more", more)
		}
		msg += ")"
	}
	return msg
}

// NewTestFailureError summarizes the failing cases of a run
func NewTestFailureError(result *runner.RunResult) *TestFailureError {
	e := &TestFailureError{
		RunID:  result.RunID,
		Status: result.Status(),
		Total:  len(result.Cases),
	}
	for _, key := range result.Keys() {
		switch result.Cases[key].Status {
		case types.StatusFail, types.StatusBroken, types.StatusNotComplete:
			e.Failing = append(e.Failing, key)
		}
	}
	return e
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
