package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ethereum-optimism/infra/op-stepper/metrics"
	"github.com/ethereum-optimism/infra/op-stepper/registry"
	"github.com/ethereum-optimism/infra/op-stepper/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ StepExecutor = (*stepExecutor)(nil)

// Policy controls how a single step is executed
type Policy struct {
	RetryEnabled   bool
	RetryOverSteps int           // additional attempts after a FAIL
	Screenshot     bool          // capture after the step whatever its outcome
	Timeout        time.Duration // per attempt, 0 for none
}

// MaxAttempts returns the total number of invocations the policy allows
func (p Policy) MaxAttempts() int {
	if p.RetryEnabled && p.RetryOverSteps > 0 {
		return 1 + p.RetryOverSteps
	}
	return 1
}

// StepExecutor runs one bound step, classifies the outcome and applies retry
type StepExecutor interface {
	Execute(ctx context.Context, sc *registry.StepContext, handler registry.Handler, args registry.Args, policy Policy) *types.StepResult
}

// ExecutorConfig holds configuration for creating a step executor
type ExecutorConfig struct {
	Log           log.Logger
	Screenshotter Screenshotter // optional
}

type stepExecutor struct {
	log           log.Logger
	screenshotter Screenshotter
	tracer        trace.Tracer
}

// NewStepExecutor creates a new step executor
func NewStepExecutor(cfg ExecutorConfig) StepExecutor {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &stepExecutor{
		log:           cfg.Log.New("component", "step-executor"),
		screenshotter: cfg.Screenshotter,
		tracer:        otel.Tracer("step executor"),
	}
}

// Execute implements StepExecutor
func (e *stepExecutor) Execute(ctx context.Context, sc *registry.StepContext, handler registry.Handler, args registry.Args, policy Policy) *types.StepResult {
	name := sc.Step.QualifiedName()
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("step %s", name), trace.WithAttributes(
		attribute.String("step", name),
		attribute.String("case", sc.Case.Key()),
		attribute.String("driver", sc.Driver.Key()),
	))
	defer span.End()

	result := &types.StepResult{
		ID:         uuid.New().String(),
		Name:       sc.Step.Name,
		TestObject: sc.Step.TestObject,
		Start:      time.Now(),
	}

	maxAttempts := policy.MaxAttempts()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt
		err := e.invoke(ctx, sc, handler, args, policy.Timeout)
		result.Status, result.Failure = classify(err)
		result.Logs = append(result.Logs, sc.Lines()...)

		if result.Status != types.StatusFail || attempt == maxAttempts {
			break
		}

		result.AddLog(fmt.Sprintf("attempt %d/%d failed: %s", attempt, maxAttempts, result.Failure.Message))
		if ctx.Err() != nil {
			result.AddLog("retry abandoned: " + context.Cause(ctx).Error())
			break
		}
		e.log.Warn("Step failed, retrying", "step", name, "attempt", attempt, "maxAttempts", maxAttempts, "error", result.Failure.Message)
	}

	if result.Status == types.StatusSkipped && result.Failure != nil {
		result.AddLog(result.Failure.Message)
		result.Failure = nil
	}

	if policy.Screenshot {
		e.capture(ctx, sc, result)
	}

	result.Stop = time.Now()

	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.Int("attempts", result.Attempts),
	)
	if result.Status == types.StatusFail {
		span.SetStatus(codes.Error, result.Failure.Message)
	}
	metrics.RecordStep(name, result.Status, result.Attempts, result.Duration())

	e.log.Debug("Step finished", "step", name, "status", result.Status, "attempts", result.Attempts, "duration", result.Duration())
	return result
}

// invoke runs the handler once, turning a panic into an error
func (e *stepExecutor) invoke(ctx context.Context, sc *registry.StepContext, handler registry.Handler, args registry.Args, timeout time.Duration) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return handler.Invoke(ctx, sc, args)
}

func (e *stepExecutor) capture(ctx context.Context, sc *registry.StepContext, result *types.StepResult) {
	if e.screenshotter == nil {
		e.log.Debug("Screenshot requested but no screenshotter configured", "step", sc.Step.QualifiedName())
		return
	}
	ref, err := e.screenshotter.Capture(ctx, sc)
	if err != nil {
		e.log.Warn("Screenshot failed", "step", sc.Step.QualifiedName(), "error", err)
		metrics.RecordErrorDetails("screenshot", err)
		result.AddLog(fmt.Sprintf("screenshot failed: %v", err))
		return
	}
	if ref != "" {
		result.Attachments = append(result.Attachments, ref)
	}
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// classify maps a handler error onto a step status
func classify(err error) (types.Status, *types.Failure) {
	if err == nil {
		return types.StatusPass, nil
	}

	var skip *types.SkipError
	if errors.As(err, &skip) {
		return types.StatusSkipped, &types.Failure{Message: err.Error()}
	}
	var known *types.KnownIssueError
	if errors.As(err, &known) {
		return types.StatusBroken, &types.Failure{Message: err.Error()}
	}
	var p *panicError
	if errors.As(err, &p) {
		return types.StatusFail, &types.Failure{Message: p.Error(), Trace: string(p.stack)}
	}
	return types.StatusFail, &types.Failure{Message: err.Error(), Trace: errorChain(err)}
}

// errorChain lists the wrapped errors, outermost first
func errorChain(err error) string {
	var chain string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain += fmt.Sprintf("%T: %v\n", e, e)
	}
	return chain
}
