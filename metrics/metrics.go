package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-stepper/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "stepper"
)

var (
	Debug        bool = false
	validResults      = []types.Status{
		types.StatusPass,
		types.StatusFail,
		types.StatusBroken,
		types.StatusSkipped,
		types.StatusNotComplete,
	}
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	poolEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "pool_entries",
		Help:      "Number of driver config pool entries by state",
	}, []string{
		"state",
	})

	poolRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "pool_rejected_configs_total",
		Help:      "Count of driver configs rejected at load",
	})

	poolLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "pool_lock_wait_seconds",
		Help:      "Time spent waiting for an idle driver config",
		Buckets:   []float64{.001, .01, .1, .5, 1, 5, 15, 30, 60, 300},
	})

	poolLockErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "pool_lock_errors_total",
		Help:      "Count of failed pool lock attempts",
	}, []string{
		"reason",
	})

	stepResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "step_results_total",
		Help:      "Count of executed steps by result",
	}, []string{
		"step",
		"result",
	})

	stepRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "step_retries_total",
		Help:      "Count of step re-invocations after a failure",
	}, []string{
		"step",
	})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "step_duration_seconds",
		Help:      "Duration of steps including retries",
		Buckets:   prometheus.DefBuckets,
	}, []string{
		"step",
	})

	caseResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "case_results_total",
		Help:      "Count of test cases by result",
	}, []string{
		"result",
	})

	caseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "case_duration_seconds",
		Help:      "Duration of test cases",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of test runs",
	}, []string{
		"run_id",
		"result",
	})

	runCasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_cases_total",
		Help:      "Number of cases per run by result",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of test runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordPoolState publishes the idle/busy split of the pool
func RecordPoolState(idle, busy int) {
	poolEntries.WithLabelValues("idle").Set(float64(idle))
	poolEntries.WithLabelValues("busy").Set(float64(busy))
}

func RecordRejectedConfig() {
	poolRejectedTotal.Inc()
}

func RecordLockWait(d time.Duration) {
	poolLockWait.Observe(d.Seconds())
}

func RecordLockError(reason string) {
	poolLockErrorsTotal.WithLabelValues(reason).Inc()
}

func RecordStep(step string, result types.Status, attempts int, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordStep - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "step_results_total",
			"step", step,
			"result", result,
			"attempts", attempts)
	}
	stepResultsTotal.WithLabelValues(step, string(result)).Inc()
	if attempts > 1 {
		stepRetriesTotal.WithLabelValues(step).Add(float64(attempts - 1))
	}
	stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

func RecordCase(result types.Status, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordCase - invalid result", "result", result)
		return
	}
	caseResultsTotal.WithLabelValues(string(result)).Inc()
	caseDuration.Observe(duration.Seconds())
}

func RecordRun(runID string, result types.Status, counts map[types.Status]int, duration time.Duration) {
	runResults.WithLabelValues(runID, string(result)).Set(1)
	for status, n := range counts {
		runCasesTotal.WithLabelValues(runID, string(status)).Add(float64(n))
	}
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.Status) bool {
	return slices.Contains(validResults, result)
}
