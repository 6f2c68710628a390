// Package addons runs auxiliary services next to the step runner.
package addons

import (
	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-stepper/addons/hubcheck"
	"github.com/ethereum-optimism/infra/op-stepper/pool"
	"github.com/ethereum-optimism/infra/op-stepper/steps"
)

type Addon interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Deps are the collaborators addons are built from
type Deps struct {
	Log     log.Logger
	Drivers pool.Source
	Client  *steps.StatusClient
}

type AddonsManager struct {
	addons []Addon
}

type addonCfg struct {
	addonGenerators []func(deps Deps) Addon
}

type Option func(*addonCfg)

// WithHubCheck queries the status endpoint of every driver hub on start
func WithHubCheck() Option {
	return func(cfg *addonCfg) {
		cfg.addonGenerators = append(cfg.addonGenerators, func(deps Deps) Addon {
			return hubcheck.New(deps.Log, deps.Drivers, deps.Client)
		})
	}
}

// WithAddon adds a prebuilt addon
func WithAddon(a Addon) Option {
	return func(cfg *addonCfg) {
		cfg.addonGenerators = append(cfg.addonGenerators, func(Deps) Addon {
			return a
		})
	}
}

func NewAddonsManager(deps Deps, opts ...Option) *AddonsManager {
	if deps.Log == nil {
		deps.Log = log.New()
		deps.Log.Error("No logger provided, using default")
	}
	if deps.Client == nil {
		deps.Client = steps.NewStatusClient(deps.Log)
	}

	cfg := &addonCfg{}
	for _, opt := range opts {
		opt(cfg)
	}

	addons := []Addon{}
	for _, generator := range cfg.addonGenerators {
		addons = append(addons, generator(deps))
	}

	return &AddonsManager{
		addons: addons,
	}
}

// Len returns the number of managed addons
func (m *AddonsManager) Len() int {
	if m == nil {
		return 0
	}
	return len(m.addons)
}

func (m *AddonsManager) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	for _, addon := range m.addons {
		if err := addon.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *AddonsManager) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}
	for _, addon := range m.addons {
		if err := addon.Stop(ctx); err != nil {
			return err
		}
	}
	return nil
}
