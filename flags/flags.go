package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-stepper/runner"
	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_STEPPER"

var (
	Cases = &cli.StringFlag{
		Name:     "cases",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "CASES"),
		Usage:    "Path to a test-case file or a directory of JSON/YAML case files",
	}
	Drivers = &cli.StringFlag{
		Name:     "drivers",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "DRIVERS"),
		Usage:    "Path to a driver-config file or a directory of JSON/YAML driver files",
	}
	MaxWorkers = &cli.IntFlag{
		Name:    "max-workers",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_WORKERS"),
		Usage:   "Maximum number of concurrent workers. 0 runs one worker per driver config.",
		Action:  nonNegativeInt("max-workers"),
	}
	RetryEnabled = &cli.BoolFlag{
		Name:    "retry",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RETRY"),
		Usage:   "Re-invoke failing steps",
	}
	RetryOverSteps = &cli.IntFlag{
		Name:    "retry-over-steps",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RETRY_OVER_STEPS"),
		Usage:   "Additional attempts for a failing step when --retry is set",
		Action:  nonNegativeInt("retry-over-steps"),
	}
	StopOnError = &cli.BoolFlag{
		Name:    "stop-on-error",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STOP_ON_ERROR"),
		Usage:   "Default for skipping the remaining steps of a case after a FAIL or BROKEN step",
	}
	Screenshot = &cli.BoolFlag{
		Name:    "screenshot",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SCREENSHOT"),
		Usage:   "Capture a screenshot after every step",
	}
	LockTimeout = &cli.DurationFlag{
		Name:    "lock-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOCK_TIMEOUT"),
		Usage:   "How long a worker waits for an idle driver config (e.g. '5m'). 0 waits until cancelled.",
		Action:  nonNegativeDuration("lock-timeout"),
	}
	StepTimeout = &cli.DurationFlag{
		Name:    "step-timeout",
		Value:   runner.DefaultStepTimeout,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STEP_TIMEOUT"),
		Usage:   "Timeout for a single step attempt. 0 disables it.",
		Action:  nonNegativeDuration("step-timeout"),
	}
	StrictResolve = &cli.BoolFlag{
		Name:    "strict-resolve",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STRICT_RESOLVE"),
		Usage:   "Resolve and bind every step before any worker starts and abort the run on error",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
		Action:  nonNegativeDuration("run-interval"),
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store per-case logs",
	}
	ShowSummary = &cli.BoolFlag{
		Name:    "show-summary",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_SUMMARY"),
		Usage:   "Print a table of case and step results after each run",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Log periodic progress updates during a run",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is set",
		Action:  nonNegativeDuration("progress-interval"),
	}
	HubCheck = &cli.BoolFlag{
		Name:    "hub-check",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HUB_CHECK"),
		Usage:   "Query the /status endpoint of every driver hub before each run",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the healthz and pool status server",
	}
)

var requiredFlags = []cli.Flag{
	Cases,
	Drivers,
}

var optionalFlags = []cli.Flag{
	MaxWorkers,
	RetryEnabled,
	RetryOverSteps,
	StopOnError,
	Screenshot,
	LockTimeout,
	StepTimeout,
	StrictResolve,
	RunInterval,
	LogDir,
	ShowSummary,
	ShowProgress,
	ProgressInterval,
	HubCheck,
	HealthzAddr,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func nonNegativeInt(name string) func(*cli.Context, int) error {
	return func(_ *cli.Context, v int) error {
		if v < 0 {
			return fmt.Errorf("%s cannot be negative: %d", name, v)
		}
		return nil
	}
}

func nonNegativeDuration(name string) func(*cli.Context, time.Duration) error {
	return func(_ *cli.Context, v time.Duration) error {
		if v < 0 {
			return fmt.Errorf("%s cannot be negative: %s", name, v)
		}
		return nil
	}
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
