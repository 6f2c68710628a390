package stepper

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-stepper/runner"
	"github.com/ethereum-optimism/infra/op-stepper/types"
)

func TestDefaultMetricsReporter_ReportRun(t *testing.T) {
	start := time.Now()
	result := runner.NewRunResult("reporter-run-1")
	result.Start = start
	result.Stop = start.Add(time.Second)
	result.Add(&types.CaseResult{Case: "a", Status: types.StatusPass})
	result.Add(&types.CaseResult{Case: "b", Status: types.StatusFail})

	reporter := NewDefaultMetricsReporter()
	require.NotPanics(t, func() { reporter.ReportRun(result) })
	require.NotPanics(t, func() { reporter.ReportRun(nil) })

	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "stepper_run_cases_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)
}

func TestIsFailing(t *testing.T) {
	tests := []struct {
		statuses []types.Status
		want     bool
	}{
		{nil, false},
		{[]types.Status{types.StatusPass}, false},
		{[]types.Status{types.StatusPass, types.StatusSkipped}, false},
		{[]types.Status{types.StatusPass, types.StatusBroken}, true},
		{[]types.Status{types.StatusNotComplete}, true},
		{[]types.Status{types.StatusSkipped, types.StatusFail}, true},
	}
	for _, tt := range tests {
		result := runner.NewRunResult("r")
		for i, s := range tt.statuses {
			result.Add(&types.CaseResult{Case: string(rune('a' + i)), Status: s})
		}
		assert.Equal(t, tt.want, isFailing(result), "%v", tt.statuses)
	}
	assert.False(t, isFailing(nil))
}
