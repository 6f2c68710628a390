package runner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-stepper/types"
)

// RunResult collects the case results of one run, keyed by case identity.
// Results arrive in completion order, which carries no meaning.
type RunResult struct {
	RunID  string
	Cases  map[string]*types.CaseResult
	Errors []error
	Start  time.Time
	Stop   time.Time
}

// NewRunResult creates an empty result for a run
func NewRunResult(runID string) *RunResult {
	return &RunResult{
		RunID: runID,
		Cases: make(map[string]*types.CaseResult),
		Start: time.Now(),
	}
}

// Add stores a case result. A case key seen earlier in the run gets a "#n" suffix.
func (r *RunResult) Add(cr *types.CaseResult) string {
	key := cr.Case
	for n := 2; ; n++ {
		if _, exists := r.Cases[key]; !exists {
			break
		}
		key = fmt.Sprintf("%s#%d", cr.Case, n)
	}
	r.Cases[key] = cr
	return key
}

// Keys returns the case keys in sorted order
func (r *RunResult) Keys() []string {
	keys := make([]string, 0, len(r.Cases))
	for k := range r.Cases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Results returns the case results sorted by key
func (r *RunResult) Results() []*types.CaseResult {
	keys := r.Keys()
	results := make([]*types.CaseResult, 0, len(keys))
	for _, k := range keys {
		results = append(results, r.Cases[k])
	}
	return results
}

// Status returns the worst case status of the run. A run without cases is SKIPPED.
func (r *RunResult) Status() types.Status {
	if len(r.Cases) == 0 {
		return types.StatusSkipped
	}
	worst := types.StatusPass
	for _, cr := range r.Cases {
		worst = types.Worst(worst, cr.Status)
	}
	return worst
}

// Counts returns the number of cases per status
func (r *RunResult) Counts() map[types.Status]int {
	counts := make(map[types.Status]int)
	for _, cr := range r.Cases {
		counts[cr.Status]++
	}
	return counts
}

// Duration returns the wall time of the run
func (r *RunResult) Duration() time.Duration {
	if r.Stop.IsZero() {
		return time.Since(r.Start)
	}
	return r.Stop.Sub(r.Start)
}

// String returns a one-line summary
func (r *RunResult) String() string {
	counts := r.Counts()
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %d cases, status %s", r.RunID, len(r.Cases), r.Status())
	for _, s := range []types.Status{types.StatusPass, types.StatusFail, types.StatusBroken, types.StatusNotComplete, types.StatusSkipped} {
		if counts[s] > 0 {
			fmt.Fprintf(&b, ", %s=%d", s, counts[s])
		}
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, ", %d errors", len(r.Errors))
	}
	return b.String()
}
