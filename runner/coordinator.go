package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-stepper/metrics"
	"github.com/ethereum-optimism/infra/op-stepper/pool"
	"github.com/ethereum-optimism/infra/op-stepper/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Registry is the part of registry.Registry the coordinator needs
type Registry interface {
	Resolver
	Validate(cases []types.TestCase) []error
}

// CoordinatorConfig holds configuration for creating a run coordinator
type CoordinatorConfig struct {
	Pool          Pool
	Registry      Registry
	Executor      StepExecutor // defaults to NewStepExecutor
	Reporters     []Reporter
	Progress      ProgressIndicator // optional
	Log           log.Logger
	MaxWorkers    int // 0 means one worker per pool entry
	Policy        Policy
	StopOnError   bool
	StrictResolve bool
}

// Coordinator fans test cases out to workers, each holding one pool entry per case
type Coordinator struct {
	pool          Pool
	registry      Registry
	executor      StepExecutor
	reporters     []Reporter
	progress      ProgressIndicator
	log           log.Logger
	maxWorkers    int
	policy        Policy
	stopOnError   bool
	strictResolve bool
	tracer        trace.Tracer
}

// NewCoordinator creates a new run coordinator
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Pool == nil {
		return nil, errors.New("pool is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.MaxWorkers < 0 {
		return nil, fmt.Errorf("max workers cannot be negative: %d", cfg.MaxWorkers)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Executor == nil {
		cfg.Executor = NewStepExecutor(ExecutorConfig{Log: cfg.Log})
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator()
	}
	if cfg.MaxWorkers > MaxReasonableWorkers {
		cfg.Log.Warn("Very high worker count requested", "maxWorkers", cfg.MaxWorkers,
			"recommendation", "workers beyond the pool size only wait on Lock")
	}
	return &Coordinator{
		pool:          cfg.Pool,
		registry:      cfg.Registry,
		executor:      cfg.Executor,
		reporters:     cfg.Reporters,
		progress:      cfg.Progress,
		log:           cfg.Log.New("component", "coordinator"),
		maxWorkers:    cfg.MaxWorkers,
		policy:        cfg.Policy,
		stopOnError:   cfg.StopOnError,
		strictResolve: cfg.StrictResolve,
		tracer:        otel.Tracer("run coordinator"),
	}, nil
}

// Run executes all cases and returns their results keyed by case.
// A non-nil error means the run was aborted: no usable pool, a failed
// preflight, or a Lock that timed out or was cancelled. The partial
// RunResult is returned alongside it.
func (c *Coordinator) Run(ctx context.Context, cases []types.TestCase) (*RunResult, error) {
	result := NewRunResult(uuid.New().String())
	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("run %s", result.RunID), trace.WithAttributes(
		attribute.String("run_id", result.RunID),
		attribute.Int("cases", len(cases)),
	))
	defer span.End()

	err := c.run(ctx, cases, result)
	result.Stop = time.Now()

	if err != nil {
		result.Errors = append(result.Errors, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordErrorDetails("run_abort", err)
		c.log.Error("Run aborted", "runID", result.RunID, "completed", len(result.Cases), "total", len(cases), "error", err)
		return result, err
	}

	span.SetAttributes(attribute.String("status", string(result.Status())))
	c.log.Info("Run finished", "runID", result.RunID, "cases", len(result.Cases), "status", result.Status(), "duration", result.Duration())
	return result, nil
}

func (c *Coordinator) run(ctx context.Context, cases []types.TestCase, result *RunResult) error {
	entries := c.pool.Count()
	if entries == 0 {
		return fmt.Errorf("%w: pool has no entries", pool.ErrConfigNotFound)
	}

	if c.strictResolve {
		if errs := c.registry.Validate(cases); len(errs) > 0 {
			return fmt.Errorf("step preflight failed: %w", errors.Join(errs...))
		}
	}

	if len(cases) == 0 {
		c.log.Warn("No cases to run", "runID", result.RunID)
		return nil
	}

	workers := c.workerCount(entries, len(cases))
	c.log.Info("Starting run", "runID", result.RunID, "cases", len(cases), "workers", workers, "poolEntries", entries)
	c.progress.StartRun(result.RunID, len(cases))
	defer c.progress.CompleteRun(result.RunID)
	return c.dispatch(ctx, result, cases, workers)
}

func (c *Coordinator) workerCount(entries, cases int) int {
	n := c.maxWorkers
	if n == 0 {
		n = entries
	}
	return min(n, cases)
}

func (c *Coordinator) report(ctx context.Context, runID string, cr *types.CaseResult) {
	for _, r := range c.reporters {
		if err := r.ReportCase(ctx, runID, cr); err != nil {
			metrics.RecordErrorDetails("report", err)
			c.log.Error("Reporter failed", "case", cr.Case, "error", err)
		}
	}
}

// dispatch feeds cases to a bounded set of workers and collects their results
func (c *Coordinator) dispatch(ctx context.Context, result *RunResult, cases []types.TestCase, workers int) error {
	g, gctx := errgroup.WithContext(ctx)
	workChan := make(chan types.TestCase)
	resultChan := make(chan *types.CaseResult, workers)

	g.Go(func() error {
		defer close(workChan)
		for _, tc := range cases {
			select {
			case workChan <- tc:
			case <-gctx.Done():
				c.log.Debug("Context done while sending cases", "runID", result.RunID)
				return nil
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		g.Go(func() error {
			return c.worker(gctx, workerID, workChan, resultChan)
		})
	}

	var runErr error
	go func() {
		runErr = g.Wait()
		close(resultChan)
	}()

	// Reporters run on this goroutine only, so they need no locking of their own
	for cr := range resultChan {
		result.Add(cr)
		c.report(ctx, result.RunID, cr)
	}

	if runErr == nil && ctx.Err() != nil && len(result.Cases) < len(cases) {
		runErr = fmt.Errorf("%w: %v", pool.ErrCancelled, context.Cause(ctx))
	}
	return runErr
}

func (c *Coordinator) worker(ctx context.Context, workerID string, work <-chan types.TestCase, results chan<- *types.CaseResult) error {
	wlog := c.log.New("worker", workerID)
	wlog.Debug("Worker starting")
	defer wlog.Debug("Worker exiting")

	for {
		select {
		case tc, ok := <-work:
			if !ok {
				return nil
			}
			cr, err := c.runCase(ctx, workerID, tc)
			if err != nil {
				return err
			}
			// The collector drains until every worker has returned
			results <- cr
		case <-ctx.Done():
			return nil
		}
	}
}

// runCase holds one pool entry for the whole case and always hands it back
func (c *Coordinator) runCase(ctx context.Context, workerID string, tc types.TestCase) (cr *types.CaseResult, err error) {
	entry, err := c.pool.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", tc.Key(), err)
	}
	started := time.Now()
	c.progress.StartCase(tc.Key(), workerID)

	defer func() {
		if r := recover(); r != nil {
			cr = panicResult(tc, workerID, entry.Key(), started, r)
			metrics.RecordErrorDetails("case_panic", cr.Error)
			c.log.Error("Case panicked", "case", tc.Key(), "worker", workerID, "panic", r)
		}
		if uerr := c.pool.Unlock(entry); uerr != nil {
			metrics.RecordErrorDetails("unlock", uerr)
			c.log.Warn("Failed to release pool entry", "driver", entry.Key(), "worker", workerID, "error", uerr)
		}
		if cr != nil {
			c.progress.CompleteCase(tc.Key(), cr.Status)
		}
	}()

	orch, err := NewCaseOrchestrator(OrchestratorConfig{
		Registry:    c.registry,
		Executor:    c.executor,
		Driver:      entry.Config(),
		WorkerID:    workerID,
		Log:         c.log,
		Policy:      c.policy,
		StopOnError: c.stopOnError,
	})
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx, tc), nil
}

func panicResult(tc types.TestCase, workerID, driver string, started time.Time, r any) *types.CaseResult {
	return &types.CaseResult{
		ID:         uuid.New().String(),
		Case:       tc.Key(),
		Name:       tc.Name,
		TestCaseID: tc.TestCaseID,
		State:      types.CaseStateComplete,
		Status:     types.StatusBroken,
		Start:      started,
		Stop:       time.Now(),
		WorkerID:   workerID,
		Driver:     driver,
		Error:      fmt.Errorf("case panicked: %v", r),
	}
}
