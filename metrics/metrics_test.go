package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-stepper/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("pool exhausted: no idle entry@30s"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("step   not found"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordErrorDetails(t *testing.T) {
	// nil errors are ignored
	RecordErrorDetails("test", nil)

	RecordErrorDetails("test", errors.New("sample error"))
	assert.Equal(t, float64(1), testutil.ToFloat64(errorsTotal.WithLabelValues("test.sample_error")))
}

func TestRecordPoolState(t *testing.T) {
	RecordPoolState(3, 2)
	assert.Equal(t, float64(3), testutil.ToFloat64(poolEntries.WithLabelValues("idle")))
	assert.Equal(t, float64(2), testutil.ToFloat64(poolEntries.WithLabelValues("busy")))
}

func TestRecordStep(t *testing.T) {
	RecordStep("builtin.retry", types.StatusPass, 3, time.Second)
	assert.Equal(t, float64(1), testutil.ToFloat64(stepResultsTotal.WithLabelValues("builtin.retry", "PASS")))
	assert.Equal(t, float64(2), testutil.ToFloat64(stepRetriesTotal.WithLabelValues("builtin.retry")))

	// invalid results are dropped
	RecordStep("builtin.retry", types.Status("weird"), 1, time.Second)
	assert.Equal(t, float64(0), testutil.ToFloat64(stepResultsTotal.WithLabelValues("builtin.retry", "weird")))
}

func TestRecordCaseAndRun(t *testing.T) {
	RecordCase(types.StatusNotComplete, 2*time.Second)
	assert.Equal(t, float64(1), testutil.ToFloat64(caseResultsTotal.WithLabelValues("NOT_COMPLETE")))

	RecordRun("run1", types.StatusFail, map[types.Status]int{
		types.StatusPass: 4,
		types.StatusFail: 1,
	}, time.Minute)
	assert.Equal(t, float64(4), testutil.ToFloat64(runCasesTotal.WithLabelValues("run1", "PASS")))
	assert.Equal(t, float64(60), testutil.ToFloat64(runDuration.WithLabelValues("run1")))
}
