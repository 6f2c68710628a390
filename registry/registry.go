// Package registry maps step names to their handlers.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum-optimism/infra/op-stepper/types"
	"github.com/ethereum/go-ethereum/log"
)

var (
	ErrStepNotFound      = errors.New("step not found")
	ErrAmbiguousStep     = errors.New("step defined more than once")
	ErrParameterNotFound = errors.New("step parameter not found")
	ErrTypeMismatch      = errors.New("step parameter type mismatch")
)

// Metadata is what a step declares about itself at registration
type Metadata struct {
	DataKey     string // test data key used when the step spec has no `using`
	Screenshot  bool
	StopOnError *bool
	Description string
}

// Definition is one row of a declarative step table
type Definition struct {
	TestObject string
	Name       string
	Handler    Handler
	Metadata   Metadata
}

type registration struct {
	handler  Handler
	metadata Metadata
	count    int
}

// Registry holds step handlers keyed by test object and step name
type Registry struct {
	config Config
	steps  map[string]*registration
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log log.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config) *Registry {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Registry{
		config: cfg,
		steps:  make(map[string]*registration),
	}
}

func stepKey(testObject, stepName string) string {
	return fmt.Sprintf("%s::%s", testObject, stepName)
}

// Register adds a handler for (testObject, stepName). A second registration of
// the same pair returns ErrAmbiguousStep and makes the pair unresolvable.
func (r *Registry) Register(testObject, stepName string, handler Handler, md Metadata) error {
	if stepName == "" {
		return errors.New("step name is required")
	}
	if handler.invoke == nil {
		return fmt.Errorf("step %s: handler is required", stepKey(testObject, stepName))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := stepKey(testObject, stepName)
	if reg, exists := r.steps[key]; exists {
		reg.count++
		r.config.Log.Error("Step registered more than once", "step", key, "count", reg.count)
		return fmt.Errorf("%w: %s", ErrAmbiguousStep, key)
	}
	r.steps[key] = &registration{handler: handler, metadata: md, count: 1}
	r.config.Log.Debug("Registered step", "step", key, "params", handler.Kind())
	return nil
}

// MustRegister is like Register but panics on error
func (r *Registry) MustRegister(testObject, stepName string, handler Handler, md Metadata) {
	if err := r.Register(testObject, stepName, handler, md); err != nil {
		panic(err)
	}
}

// RegisterTable registers every definition, collecting all failures
func (r *Registry) RegisterTable(defs []Definition) error {
	var errs []error
	for _, d := range defs {
		if err := r.Register(d.TestObject, d.Name, d.Handler, d.Metadata); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Resolve returns the handler and metadata for (testObject, stepName)
func (r *Registry) Resolve(testObject, stepName string) (Handler, Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := stepKey(testObject, stepName)
	reg, exists := r.steps[key]
	if !exists {
		return Handler{}, Metadata{}, fmt.Errorf("%w: %s", ErrStepNotFound, key)
	}
	if reg.count > 1 {
		return Handler{}, Metadata{}, fmt.Errorf("%w: %s (%d definitions)", ErrAmbiguousStep, key, reg.count)
	}
	return reg.handler, reg.metadata, nil
}

// Validate resolves every step of every case and binds its parameters against
// the case's test data. It returns one error per failing step.
func (r *Registry) Validate(cases []types.TestCase) []error {
	var errs []error
	for _, tc := range cases {
		for i, step := range tc.Steps {
			h, md, err := r.Resolve(step.TestObject, step.Name)
			if err == nil {
				_, err = BindParameters(h, md, step, tc.Data)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("case %s step %d: %w", tc.Key(), i+1, err))
			}
		}
	}
	return errs
}

// Steps returns the registered step keys in sorted order
func (r *Registry) Steps() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.steps))
	for k := range r.steps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
