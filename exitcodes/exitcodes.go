// Package exitcodes defines the exit codes used by op-stepper.
package exitcodes

// * Success (0): every case passed or was skipped
// * TestFailure (1): at least one case failed, broke or stopped early
// * RuntimeErr (2): the run could not happen or was aborted (config, pool, preflight, cancellation)
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
