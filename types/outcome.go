package types

import (
	"errors"
	"fmt"
)

// KnownIssueError marks a soft failure: recorded as BROKEN instead of FAIL
type KnownIssueError struct {
	Message string
}

func (e *KnownIssueError) Error() string {
	return fmt.Sprintf("known issue: %s", e.Message)
}

// KnownIssue returns the signal a step handler uses for a known issue
func KnownIssue(format string, args ...any) error {
	return &KnownIssueError{Message: fmt.Sprintf(format, args...)}
}

// IsKnownIssue checks if the error is or wraps a KnownIssueError
func IsKnownIssue(err error) bool {
	var known *KnownIssueError
	return err != nil && errors.As(err, &known)
}

// SkipError is returned by a step handler whose preconditions are not met
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skipped: %s", e.Reason)
}

// Skip returns the signal a step handler uses to skip itself
func Skip(format string, args ...any) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// IsSkip checks if the error is or wraps a SkipError
func IsSkip(err error) bool {
	var skip *SkipError
	return err != nil && errors.As(err, &skip)
}
