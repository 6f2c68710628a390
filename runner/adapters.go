package runner

import (
	"context"

	"github.com/ethereum-optimism/infra/op-stepper/pool"
	"github.com/ethereum-optimism/infra/op-stepper/registry"
	"github.com/ethereum-optimism/infra/op-stepper/types"
)

// Pool is the part of pool.Pool the coordinator needs
type Pool interface {
	Lock(ctx context.Context) (*pool.Entry, error)
	Unlock(e *pool.Entry) error
	Count() int
}

// Resolver is the part of registry.Registry the orchestrator needs
type Resolver interface {
	Resolve(testObject, stepName string) (registry.Handler, registry.Metadata, error)
}

// Screenshotter captures the driver's screen after a step. The returned string
// is an attachment reference stored on the StepResult.
type Screenshotter interface {
	Capture(ctx context.Context, sc *registry.StepContext) (string, error)
}

// ScreenshotterFunc adapts a plain function to Screenshotter
type ScreenshotterFunc func(ctx context.Context, sc *registry.StepContext) (string, error)

// Capture implements Screenshotter
func (f ScreenshotterFunc) Capture(ctx context.Context, sc *registry.StepContext) (string, error) {
	return f(ctx, sc)
}

// Reporter receives every finished case of a run
type Reporter interface {
	ReportCase(ctx context.Context, runID string, result *types.CaseResult) error
}

// ReporterFunc adapts a plain function to Reporter
type ReporterFunc func(ctx context.Context, runID string, result *types.CaseResult) error

// ReportCase implements Reporter
func (f ReporterFunc) ReportCase(ctx context.Context, runID string, result *types.CaseResult) error {
	return f(ctx, runID, result)
}

var (
	_ Pool     = (*pool.Pool)(nil)
	_ Resolver = (*registry.Registry)(nil)
)
