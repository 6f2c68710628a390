package stepper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-stepper/flags"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	CasesPath        string        // File or directory of test cases
	DriversPath      string        // File or directory of driver configs
	MaxWorkers       int           // 0 = one worker per pool entry
	RetryEnabled     bool          // Re-invoke failing steps
	RetryOverSteps   int           // Additional attempts per failing step
	StopOnError      bool          // Global stop-on-error default
	Screenshot       bool          // Capture after every step
	LockTimeout      time.Duration // 0 = wait until cancelled
	StepTimeout      time.Duration // 0 = none
	StrictResolve    bool          // Resolve every step before any worker starts
	RunInterval      time.Duration // Interval between runs
	RunOnce          bool          // Exit after one run
	LogDir           string        // Per-case log directory
	ShowSummary      bool
	ShowProgress     bool
	ProgressInterval time.Duration
	HubCheck         bool // Query every driver hub before the first run
	HealthzAddr      string
	Metrics          opmetrics.CLIConfig
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	casesPath, err := existingPath("cases", ctx.String(flags.Cases.Name))
	if err != nil {
		return nil, err
	}
	driversPath, err := existingPath("drivers", ctx.String(flags.Drivers.Name))
	if err != nil {
		return nil, err
	}

	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)

	cfg := &Config{
		CasesPath:        casesPath,
		DriversPath:      driversPath,
		MaxWorkers:       ctx.Int(flags.MaxWorkers.Name),
		RetryEnabled:     ctx.Bool(flags.RetryEnabled.Name),
		RetryOverSteps:   ctx.Int(flags.RetryOverSteps.Name),
		StopOnError:      ctx.Bool(flags.StopOnError.Name),
		Screenshot:       ctx.Bool(flags.Screenshot.Name),
		LockTimeout:      ctx.Duration(flags.LockTimeout.Name),
		StepTimeout:      ctx.Duration(flags.StepTimeout.Name),
		StrictResolve:    ctx.Bool(flags.StrictResolve.Name),
		RunInterval:      runInterval,
		RunOnce:          runInterval == 0,
		LogDir:           logDir,
		ShowSummary:      ctx.Bool(flags.ShowSummary.Name),
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		HubCheck:         ctx.Bool(flags.HubCheck.Name),
		HealthzAddr:      ctx.String(flags.HealthzAddr.Name),
		Metrics:          opmetrics.ReadCLIConfig(ctx),
		Log:              log,
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check rejects negative knobs and missing paths
func (c *Config) Check() error {
	if c.CasesPath == "" {
		return errors.New("cases path is required")
	}
	if c.DriversPath == "" {
		return errors.New("drivers path is required")
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max workers cannot be negative: %d", c.MaxWorkers)
	}
	if c.RetryOverSteps < 0 {
		return fmt.Errorf("retry-over-steps cannot be negative: %d", c.RetryOverSteps)
	}
	for name, d := range map[string]time.Duration{
		"lock timeout":      c.LockTimeout,
		"step timeout":      c.StepTimeout,
		"run interval":      c.RunInterval,
		"progress interval": c.ProgressInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative: %s", name, d)
		}
	}
	if c.Metrics.Enabled {
		if err := c.Metrics.Check(); err != nil {
			return fmt.Errorf("invalid metrics config: %w", err)
		}
	}
	return nil
}

func existingPath(what, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%s path is required", what)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s '%s': %w", what, path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("%s path '%s': %w", what, path, err)
	}
	return abs, nil
}
