package types

import (
	"time"
)

// Status represents the outcome of a step or a case
type Status string

const (
	StatusPass        Status = "PASS"
	StatusFail        Status = "FAIL"
	StatusBroken      Status = "BROKEN"
	StatusSkipped     Status = "SKIPPED"
	StatusNotComplete Status = "NOT_COMPLETE"
)

// Severity orders statuses so the worst of several can be picked.
// NOT_COMPLETE ranks above FAIL since it always follows a failing or broken step.
func (s Status) Severity() int {
	switch s {
	case StatusPass:
		return 0
	case StatusSkipped:
		return 1
	case StatusBroken:
		return 2
	case StatusFail:
		return 3
	case StatusNotComplete:
		return 4
	default:
		return -1
	}
}

// Worst returns the more severe of two statuses
func Worst(a, b Status) Status {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// CaseState is the lifecycle position of a case inside its orchestrator
type CaseState string

const (
	CaseStatePending  CaseState = "PENDING"
	CaseStateRunning  CaseState = "RUNNING"
	CaseStateComplete CaseState = "COMPLETE"
)

// Failure captures what went wrong in a step
type Failure struct {
	Message string
	Trace   string
}

// StepResult captures the outcome of a single step, including all of its attempts
type StepResult struct {
	ID          string
	Name        string
	TestObject  string
	Status      Status
	Start       time.Time
	Stop        time.Time
	Failure     *Failure
	Attempts    int
	Logs        []string
	Attachments []string
}

// Duration returns how long the step ran across all attempts
func (sr *StepResult) Duration() time.Duration {
	if sr.Start.IsZero() || sr.Stop.IsZero() {
		return 0
	}
	return sr.Stop.Sub(sr.Start)
}

// AddLog appends a free-text line to the step
func (sr *StepResult) AddLog(line string) {
	sr.Logs = append(sr.Logs, line)
}

// CaseResult captures the outcome of one test case run on one driver
type CaseResult struct {
	ID         string
	Case       string // TestCase.Key()
	Name       string
	TestCaseID string
	State      CaseState
	Status     Status
	Steps      []*StepResult
	Start      time.Time
	Stop       time.Time
	WorkerID   string
	Driver     string
	Error      error
	Truncated  bool // stop-on-error cut the step sequence short
}

// Duration returns the wall time of the case
func (cr *CaseResult) Duration() time.Duration {
	if cr.Start.IsZero() || cr.Stop.IsZero() {
		return 0
	}
	return cr.Stop.Sub(cr.Start)
}

// Counts returns the number of steps per status
func (cr *CaseResult) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, s := range cr.Steps {
		counts[s.Status]++
	}
	return counts
}

// WorstStep returns the most severe status among the recorded steps.
// A case without steps reports SKIPPED.
func (cr *CaseResult) WorstStep() Status {
	if len(cr.Steps) == 0 {
		return StatusSkipped
	}
	worst := StatusPass
	for _, s := range cr.Steps {
		worst = Worst(worst, s.Status)
	}
	return worst
}
