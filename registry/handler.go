package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/op-stepper/types"
	"github.com/ethereum/go-ethereum/log"
)

// ParamKind is the parameter shape a step handler accepts
type ParamKind int

const (
	ParamNone ParamKind = iota
	ParamSingle
	ParamMulti
	ParamMap
)

func (k ParamKind) String() string {
	switch k {
	case ParamNone:
		return "none"
	case ParamSingle:
		return "single"
	case ParamMulti:
		return "multi"
	case ParamMap:
		return "map"
	default:
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
}

// StepContext is handed to every handler invocation. It carries the case,
// the step and the driver the worker holds, and collects log lines.
type StepContext struct {
	Case     types.TestCase
	Step     types.StepSpec
	Driver   types.DriverConfig
	WorkerID string
	Log      log.Logger

	mu    sync.Mutex
	lines []string
}

// Logf records a line against the running step
func (sc *StepContext) Logf(format string, args ...any) {
	line := stripansi.Strip(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
	sc.mu.Lock()
	sc.lines = append(sc.lines, line)
	sc.mu.Unlock()
	if sc.Log != nil {
		sc.Log.Debug("step log", "step", sc.Step.QualifiedName(), "line", line)
	}
}

// Lines returns the recorded lines and clears them
func (sc *StepContext) Lines() []string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	lines := sc.lines
	sc.lines = nil
	return lines
}

// Args holds parameters bound for one invocation
type Args struct {
	Kind   ParamKind
	Single string
	Multi  []string
	Map    map[string]string
}

// Handler is an invocable step. Build one with NoParam, Single, Multi or Map.
type Handler struct {
	kind   ParamKind
	invoke func(ctx context.Context, sc *StepContext, args Args) error
}

// Kind returns the parameter shape the handler was declared with
func (h Handler) Kind() ParamKind {
	return h.kind
}

// Invoke runs the handler with bound arguments
func (h Handler) Invoke(ctx context.Context, sc *StepContext, args Args) error {
	if h.invoke == nil {
		return fmt.Errorf("step %s has no handler", sc.Step.QualifiedName())
	}
	if args.Kind != h.kind {
		return fmt.Errorf("%w: handler takes %s parameters, got %s", ErrTypeMismatch, h.kind, args.Kind)
	}
	return h.invoke(ctx, sc, args)
}

// NoParam wraps a handler that takes no bound data
func NoParam(fn func(ctx context.Context, sc *StepContext) error) Handler {
	return Handler{
		kind: ParamNone,
		invoke: func(ctx context.Context, sc *StepContext, _ Args) error {
			return fn(ctx, sc)
		},
	}
}

// Single wraps a handler that takes one scalar value
func Single(fn func(ctx context.Context, sc *StepContext, value string) error) Handler {
	return Handler{
		kind: ParamSingle,
		invoke: func(ctx context.Context, sc *StepContext, args Args) error {
			return fn(ctx, sc, args.Single)
		},
	}
}

// Multi wraps a handler that takes a list of scalar values
func Multi(fn func(ctx context.Context, sc *StepContext, values []string) error) Handler {
	return Handler{
		kind: ParamMulti,
		invoke: func(ctx context.Context, sc *StepContext, args Args) error {
			return fn(ctx, sc, args.Multi)
		},
	}
}

// Map wraps a handler that takes a map of scalar values
func Map(fn func(ctx context.Context, sc *StepContext, values map[string]string) error) Handler {
	return Handler{
		kind: ParamMap,
		invoke: func(ctx context.Context, sc *StepContext, args Args) error {
			return fn(ctx, sc, args.Map)
		},
	}
}
