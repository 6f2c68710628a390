package stepper

import (
	"github.com/ethereum-optimism/infra/op-stepper/runner"
	"github.com/ethereum-optimism/infra/op-stepper/types"
)

// isFailing reports whether a run should exit non-zero. SKIPPED cases do not count.
func isFailing(result *runner.RunResult) bool {
	if result == nil {
		return false
	}
	switch result.Status() {
	case types.StatusFail, types.StatusBroken, types.StatusNotComplete:
		return true
	default:
		return false
	}
}
