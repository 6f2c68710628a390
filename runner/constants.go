package runner

import "time"

const (
	// DefaultStepTimeout is the default of the --step-timeout flag. A zero
	// Policy.Timeout means no timeout at all.
	DefaultStepTimeout = 5 * time.Minute

	// MaxReasonableWorkers is where the coordinator starts warning about the worker count
	MaxReasonableWorkers = 32
)
