// Package stepper wires the driver pool, step registry and run coordinator
// into a service that runs declarative test cases once or periodically.
package stepper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-stepper/addons"
	"github.com/ethereum-optimism/infra/op-stepper/loader"
	"github.com/ethereum-optimism/infra/op-stepper/logging"
	"github.com/ethereum-optimism/infra/op-stepper/pool"
	"github.com/ethereum-optimism/infra/op-stepper/registry"
	"github.com/ethereum-optimism/infra/op-stepper/reporting"
	"github.com/ethereum-optimism/infra/op-stepper/runner"
	"github.com/ethereum-optimism/infra/op-stepper/service"
	"github.com/ethereum-optimism/infra/op-stepper/steps"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// stepper implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &stepper{}

type stepper struct {
	config  *Config
	version string

	pool       *pool.Pool
	registry   *registry.Registry
	executor   RunExecutor
	fileLogger *logging.FileLogger
	formatter  reporting.ResultFormatter
	reporter   MetricsReporter
	progress   *runner.ConsoleProgressIndicator
	service    *service.Service
	addons     *addons.AddonsManager
	scheduler  RunScheduler

	mu     sync.Mutex
	result *runner.RunResult

	shutdownCallback func(error) // Callback to signal application shutdown
}

// Option customizes the service, mainly for tests
type Option func(*stepper)

// WithRegistrations registers additional step handlers next to the built-ins
func WithRegistrations(defs []registry.Definition) Option {
	return func(s *stepper) {
		if err := s.registry.RegisterTable(defs); err != nil {
			s.config.Log.Error("Failed to register steps", "error", err)
		}
	}
}

// WithFormatter replaces the console formatter
func WithFormatter(f reporting.ResultFormatter) Option {
	return func(s *stepper) {
		s.formatter = f
	}
}

// WithoutService skips the healthz and metrics servers
func WithoutService() Option {
	return func(s *stepper) {
		s.service = nil
	}
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error), opts ...Option) (*stepper, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		config.Log = log.New()
		config.Log.Error("No logger provided, using default")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating stepper with config",
		"cases", config.CasesPath,
		"drivers", config.DriversPath,
		"maxWorkers", config.MaxWorkers,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"strictResolve", config.StrictResolve)

	driverSource := loader.New(loader.Config{Log: config.Log}).DriverSource(config.DriversPath)
	p := pool.New(pool.Config{
		Log:         config.Log,
		LockTimeout: config.LockTimeout,
		Source:      driverSource,
	})

	statusClient := steps.NewStatusClient(config.Log)
	reg := registry.NewRegistry(registry.Config{Log: config.Log})
	if err := steps.Register(reg, statusClient); err != nil {
		return nil, fmt.Errorf("failed to register built-in steps: %w", err)
	}

	fileLogger, err := logging.NewFileLogger(config.LogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create file logger: %w", err)
	}

	s := &stepper{
		config:           config,
		version:          version,
		pool:             p,
		registry:         reg,
		fileLogger:       fileLogger,
		formatter:        reporting.NewConsoleFormatter(config.Log, nil, true),
		reporter:         NewDefaultMetricsReporter(),
		shutdownCallback: shutdownCallback,
	}

	s.service = service.New(service.Config{
		Log:            config.Log,
		Pool:           p,
		HealthzAddr:    config.HealthzAddr,
		MetricsAddr:    net.JoinHostPort(config.Metrics.ListenAddr, strconv.Itoa(config.Metrics.ListenPort)),
		DisableMetrics: !config.Metrics.Enabled,
	})

	var addonOpts []addons.Option
	if config.HubCheck {
		addonOpts = append(addonOpts, addons.WithHubCheck())
	}
	s.addons = addons.NewAddonsManager(addons.Deps{
		Log:     config.Log,
		Drivers: driverSource,
		Client:  statusClient,
	}, addonOpts...)

	for _, opt := range opts {
		opt(s)
	}

	var progress runner.ProgressIndicator
	if config.ShowProgress {
		s.progress = runner.NewConsoleProgressIndicator(config.Log, config.ProgressInterval)
		progress = s.progress
	}

	coordinator, err := runner.NewCoordinator(runner.CoordinatorConfig{
		Pool:       p,
		Registry:   reg,
		Executor:   runner.NewStepExecutor(runner.ExecutorConfig{Log: config.Log}),
		Reporters:  []runner.Reporter{fileLogger},
		Progress:   progress,
		Log:        config.Log,
		MaxWorkers: config.MaxWorkers,
		Policy: runner.Policy{
			RetryEnabled:   config.RetryEnabled,
			RetryOverSteps: config.RetryOverSteps,
			Screenshot:     config.Screenshot,
			Timeout:        config.StepTimeout,
		},
		StopOnError:   config.StopOnError,
		StrictResolve: config.StrictResolve,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run coordinator: %w", err)
	}
	s.executor = NewDefaultRunExecutor(config.CasesPath, p, coordinator, config.Log)

	scheduler := NewIntervalScheduler(config.RunInterval, config.Log)
	scheduler.RegisterCallback(s.runCases)
	s.scheduler = scheduler

	config.Log.Info("stepper.New: created pool, registry and coordinator", "steps", len(reg.Steps()))
	return s, nil
}

// Start runs the cases, then keeps running them every RunInterval unless in run-once mode.
// Start implements the cliapp.Lifecycle interface.
func (s *stepper) Start(ctx context.Context) error {
	if s.config.RunOnce {
		s.config.Log.Info("Starting op-stepper in run-once mode")
	} else {
		s.config.Log.Info("Starting op-stepper in continuous mode", "interval", s.config.RunInterval)
	}

	if err := s.addons.Start(ctx); err != nil {
		return NewRuntimeError(fmt.Errorf("failed to start addons: %w", err))
	}
	if s.service != nil {
		s.service.Start(ctx)
	}

	if err := s.scheduler.Start(ctx); err != nil {
		s.config.Log.Error("Runtime error running cases", "error", err)
		return err
	}

	if s.config.RunOnce {
		s.config.Log.Info("Cases completed, exiting (run-once mode)")
		if result := s.Result(); isFailing(result) {
			s.config.Log.Warn("Run-once run completed with failures, returning exit code 1")
			return NewTestFailureError(result)
		}
		go func() {
			s.shutdownCallback(nil)
		}()
		return nil
	}

	s.config.Log.Debug("op-stepper started successfully")
	return nil
}

// runCases performs one run and hands its result to every consumer.
// Partial results of an aborted run are reported too.
func (s *stepper) runCases(ctx context.Context) error {
	result, err := s.executor.Execute(ctx)
	if result != nil {
		s.publish(result)
	}
	if err != nil {
		return newRunError(result, err)
	}
	return nil
}

func (s *stepper) publish(result *runner.RunResult) {
	s.mu.Lock()
	s.result = result
	s.mu.Unlock()

	s.reporter.ReportRun(result)

	if err := s.fileLogger.LogSummary(result.String()+"\n", result.RunID); err != nil {
		s.config.Log.Error("Failed to write run summary", "runID", result.RunID, "error", err)
	}
	if err := s.fileLogger.Complete(result.RunID); err != nil {
		s.config.Log.Error("Failed to close run logs", "runID", result.RunID, "error", err)
	}

	if s.config.ShowSummary && s.formatter != nil {
		if err := s.formatter.FormatResults(result); err != nil {
			s.config.Log.Error("Failed to print results", "error", err)
		}
	}
	s.config.Log.Info("Run logs written", "dir", s.fileLogger.GetBaseDir(), "runID", result.RunID)
}

// Result returns the result of the latest run
func (s *stepper) Result() *runner.RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Stop stops the op-stepper service.
// Stop implements the cliapp.Lifecycle interface.
func (s *stepper) Stop(ctx context.Context) error {
	s.config.Log.Info("Stopping op-stepper")

	if s.scheduler.Stopped() {
		s.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	if err := s.scheduler.Stop(); err != nil {
		return err
	}
	if s.progress != nil {
		s.progress.Stop()
	}
	if err := s.addons.Stop(ctx); err != nil {
		s.config.Log.Error("Failed to stop addons", "error", err)
	}
	if s.service != nil {
		s.service.Shutdown()
	}

	s.config.Log.Info("op-stepper stopped successfully")
	return nil
}

// Stopped returns true if the op-stepper service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (s *stepper) Stopped() bool {
	return s.scheduler.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
func (s *stepper) WaitForShutdown(ctx context.Context) error {
	return s.scheduler.WaitForShutdown(ctx)
}
