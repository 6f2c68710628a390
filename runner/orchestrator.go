package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
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

// OrchestratorConfig holds configuration for creating a case orchestrator
type OrchestratorConfig struct {
	Registry    Resolver
	Executor    StepExecutor
	Driver      types.DriverConfig
	WorkerID    string
	Log         log.Logger
	Policy      Policy // Screenshot is ignored here, it comes from the step and its metadata
	StopOnError bool   // global default
}

// CaseOrchestrator runs the steps of one test case in order against one driver
type CaseOrchestrator struct {
	registry    Resolver
	executor    StepExecutor
	driver      types.DriverConfig
	workerID    string
	log         log.Logger
	policy      Policy
	stopOnError bool
	tracer      trace.Tracer

	mu    sync.Mutex
	state types.CaseState
}

// NewCaseOrchestrator creates an orchestrator bound to a driver
func NewCaseOrchestrator(cfg OrchestratorConfig) (*CaseOrchestrator, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("step executor is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &CaseOrchestrator{
		registry:    cfg.Registry,
		executor:    cfg.Executor,
		driver:      cfg.Driver,
		workerID:    cfg.WorkerID,
		log:         cfg.Log.New("component", "case-orchestrator", "worker", cfg.WorkerID, "driver", cfg.Driver.Key()),
		policy:      cfg.Policy,
		stopOnError: cfg.StopOnError,
		tracer:      otel.Tracer("case orchestrator"),
		state:       types.CaseStatePending,
	}, nil
}

// State returns where the orchestrator is in its current case
func (o *CaseOrchestrator) State() types.CaseState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *CaseOrchestrator) setState(s types.CaseState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run executes every step of tc and returns the finished CaseResult.
// Step failures are data in the result, never a returned error.
func (o *CaseOrchestrator) Run(ctx context.Context, tc types.TestCase) *types.CaseResult {
	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("case %s", tc.Key()), trace.WithAttributes(
		attribute.String("case", tc.Key()),
		attribute.String("worker", o.workerID),
		attribute.String("driver", o.driver.Key()),
		attribute.Int("steps", len(tc.Steps)),
	))
	defer span.End()

	result := &types.CaseResult{
		ID:         uuid.New().String(),
		Case:       tc.Key(),
		Name:       tc.Name,
		TestCaseID: tc.TestCaseID,
		State:      types.CaseStatePending,
		WorkerID:   o.workerID,
		Driver:     o.driver.Key(),
		Steps:      make([]*types.StepResult, 0, len(tc.Steps)),
	}
	o.setState(types.CaseStatePending)

	o.log.Debug("Running case", "case", result.Case, "steps", len(tc.Steps))
	result.Start = time.Now()
	o.setState(types.CaseStateRunning)
	result.State = types.CaseStateRunning

	o.runSteps(ctx, tc, result)

	result.Stop = time.Now()
	result.State = types.CaseStateComplete
	o.setState(types.CaseStateComplete)

	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.Bool("truncated", result.Truncated),
	)
	if result.Error != nil {
		span.RecordError(result.Error)
	}
	if result.Status != types.StatusPass && result.Status != types.StatusSkipped {
		span.SetStatus(codes.Error, string(result.Status))
	}
	metrics.RecordCase(result.Status, result.Duration())

	o.log.Info("Case finished", "case", result.Case, "status", result.Status, "steps", len(result.Steps), "duration", result.Duration())
	return result
}

func (o *CaseOrchestrator) runSteps(ctx context.Context, tc types.TestCase, result *types.CaseResult) {
	for i, step := range tc.Steps {
		if ctx.Err() != nil {
			cause := context.Cause(ctx)
			o.skipRemaining(tc.Steps[i:], result, fmt.Sprintf("case interrupted: %v", cause))
			result.Status = types.StatusNotComplete
			result.Error = cause
			o.log.Warn("Case interrupted", "case", result.Case, "step", i+1, "error", cause)
			return
		}

		handler, md, err := o.registry.Resolve(step.TestObject, step.Name)
		if err == nil {
			var args registry.Args
			args, err = registry.BindParameters(handler, md, step, tc.Data)
			if err == nil {
				sr := o.executeStep(ctx, tc, step, handler, md, args)
				result.Steps = append(result.Steps, sr)

				if isFailing(sr.Status) && i < len(tc.Steps)-1 && o.effectiveStopOnError(tc, step, md) {
					o.log.Info("Stopping case after failed step", "case", result.Case, "step", step.QualifiedName(), "status", sr.Status, "remaining", len(tc.Steps)-i-1)
					result.Truncated = true
					result.Status = types.StatusNotComplete
					return
				}
				continue
			}
		}

		o.abort(tc.Steps[i:], result, err)
		return
	}

	result.Status = finalStatus(result.Steps)
}

func (o *CaseOrchestrator) executeStep(ctx context.Context, tc types.TestCase, step types.StepSpec, handler registry.Handler, md registry.Metadata, args registry.Args) *types.StepResult {
	sc := &registry.StepContext{
		Case:     tc,
		Step:     step,
		Driver:   o.driver,
		WorkerID: o.workerID,
		Log:      o.log,
	}
	policy := o.policy
	policy.Screenshot = step.Screenshot || md.Screenshot
	return o.executor.Execute(ctx, sc, handler, args, policy)
}

// abort handles a resolve or bind error: the offending step is BROKEN, the rest are SKIPPED
func (o *CaseOrchestrator) abort(steps []types.StepSpec, result *types.CaseResult, err error) {
	now := time.Now()
	result.Steps = append(result.Steps, &types.StepResult{
		ID:         uuid.New().String(),
		Name:       steps[0].Name,
		TestObject: steps[0].TestObject,
		Status:     types.StatusBroken,
		Start:      now,
		Stop:       now,
		Failure:    &types.Failure{Message: err.Error(), Trace: errorChain(err)},
	})
	o.skipRemaining(steps[1:], result, "skipped after case abort")
	result.Status = types.StatusBroken
	result.Error = err

	metrics.RecordErrorDetails("case_abort", err)
	o.log.Error("Case aborted", "case", result.Case, "step", steps[0].QualifiedName(), "error", err)
}

func (o *CaseOrchestrator) skipRemaining(steps []types.StepSpec, result *types.CaseResult, reason string) {
	now := time.Now()
	for _, s := range steps {
		result.Steps = append(result.Steps, &types.StepResult{
			ID:         uuid.New().String(),
			Name:       s.Name,
			TestObject: s.TestObject,
			Status:     types.StatusSkipped,
			Start:      now,
			Stop:       now,
			Logs:       []string{reason},
		})
	}
}

// effectiveStopOnError resolves the override chain: step, step metadata, case, global
func (o *CaseOrchestrator) effectiveStopOnError(tc types.TestCase, step types.StepSpec, md registry.Metadata) bool {
	switch {
	case step.StopOnError != nil:
		return *step.StopOnError
	case md.StopOnError != nil:
		return *md.StopOnError
	case tc.StopOnError != nil:
		return *tc.StopOnError
	default:
		return o.stopOnError
	}
}

func isFailing(s types.Status) bool {
	return s == types.StatusFail || s == types.StatusBroken
}

// finalStatus ignores SKIPPED steps unless nothing else ran
func finalStatus(steps []*types.StepResult) types.Status {
	var pass, broken bool
	for _, s := range steps {
		switch s.Status {
		case types.StatusFail:
			return types.StatusFail
		case types.StatusBroken:
			broken = true
		case types.StatusPass:
			pass = true
		}
	}
	switch {
	case broken:
		return types.StatusBroken
	case pass:
		return types.StatusPass
	default:
		return types.StatusSkipped
	}
}
