package stepper

import (
	"github.com/ethereum-optimism/infra/op-stepper/metrics"
	"github.com/ethereum-optimism/infra/op-stepper/runner"
)

// MetricsReporter records the totals of a finished run
type MetricsReporter interface {
	ReportRun(result *runner.RunResult)
}

// DefaultMetricsReporter publishes run totals as prometheus metrics
type DefaultMetricsReporter struct{}

func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

func (r *DefaultMetricsReporter) ReportRun(result *runner.RunResult) {
	if result == nil {
		return
	}
	metrics.RecordRun(result.RunID, result.Status(), result.Counts(), result.Duration())
}
