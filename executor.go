package stepper

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-stepper/loader"
	"github.com/ethereum-optimism/infra/op-stepper/runner"
	"github.com/ethereum-optimism/infra/op-stepper/types"
)

// RunExecutor performs one complete run
type RunExecutor interface {
	Execute(ctx context.Context) (*runner.RunResult, error)
}

// Reloader refreshes the driver configs between runs
type Reloader interface {
	Reload() error
}

// CaseRunner runs a set of cases against the pool
type CaseRunner interface {
	Run(ctx context.Context, cases []types.TestCase) (*runner.RunResult, error)
}

// DefaultRunExecutor reloads the pool and the case files, then hands the cases to the coordinator
type DefaultRunExecutor struct {
	casesPath string
	loader    *loader.Loader
	pool      Reloader
	runner    CaseRunner
	logger    log.Logger
}

func NewDefaultRunExecutor(casesPath string, pool Reloader, runner CaseRunner, logger log.Logger) *DefaultRunExecutor {
	return &DefaultRunExecutor{
		casesPath: casesPath,
		loader:    loader.New(loader.Config{Log: logger}),
		pool:      pool,
		runner:    runner,
		logger:    logger,
	}
}

// Execute returns the partial result together with the error when the coordinator aborts
func (e *DefaultRunExecutor) Execute(ctx context.Context) (*runner.RunResult, error) {
	if err := e.pool.Reload(); err != nil {
		return nil, fmt.Errorf("failed to load driver configs: %w", err)
	}
	cases, err := e.loader.LoadCases(e.casesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load cases: %w", err)
	}

	e.logger.Info("Running cases...", "cases", len(cases))
	result, err := e.runner.Run(ctx, cases)
	if err != nil {
		e.logger.Error("Run aborted", "error", err)
		return result, err
	}
	e.logger.Info("Run completed", "run_id", result.RunID, "status", result.Status())
	return result, nil
}
