// Package hubcheck verifies that driver hubs answer their status endpoint.
package hubcheck

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-stepper/metrics"
	"github.com/ethereum-optimism/infra/op-stepper/steps"
	"github.com/ethereum-optimism/infra/op-stepper/types"
)

// ErrNoHubReady is returned when not a single configured hub is ready
var ErrNoHubReady = errors.New("no driver hub is ready")

const maxConcurrentChecks = 8

// Report lists hubs by readiness
type Report struct {
	Ready    []string
	NotReady map[string]error
}

// Checker queries every distinct hub of the configured drivers
type Checker struct {
	log     log.Logger
	drivers func() ([]types.DriverConfig, error)
	client  *steps.StatusClient
}

func New(logger log.Logger, drivers func() ([]types.DriverConfig, error), client *steps.StatusClient) *Checker {
	if client == nil {
		client = steps.NewStatusClient(logger)
	}
	return &Checker{
		log:     logger.New("component", "hubcheck"),
		drivers: drivers,
		client:  client,
	}
}

// Check queries each hub once, however many drivers share it
func (c *Checker) Check(ctx context.Context) (*Report, error) {
	if c.drivers == nil {
		return nil, errors.New("no driver source configured")
	}
	cfgs, err := c.drivers()
	if err != nil {
		return nil, fmt.Errorf("failed to read driver configs: %w", err)
	}

	seen := map[string]bool{}
	var hubs []string
	for _, cfg := range cfgs {
		if cfg.HubURL == "" || seen[cfg.HubURL] {
			continue
		}
		seen[cfg.HubURL] = true
		hubs = append(hubs, cfg.HubURL)
	}

	report := &Report{NotReady: map[string]error{}}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)
	for _, hub := range hubs {
		g.Go(func() error {
			_, err := c.client.Check(gctx, hub)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.NotReady[hub] = err
				return nil
			}
			report.Ready = append(report.Ready, hub)
			return nil
		})
	}
	_ = g.Wait()
	return report, nil
}

// Start logs the readiness of every hub and fails only when none is ready
func (c *Checker) Start(ctx context.Context) error {
	report, err := c.Check(ctx)
	if err != nil {
		return err
	}
	for hub, herr := range report.NotReady {
		c.log.Warn("Driver hub not ready", "hub", hub, "err", herr)
		metrics.RecordErrorDetails("hub_check", herr)
	}
	c.log.Info("Driver hub check complete", "ready", len(report.Ready), "notReady", len(report.NotReady))
	if len(report.Ready) == 0 && len(report.NotReady) > 0 {
		return ErrNoHubReady
	}
	return nil
}

func (c *Checker) Stop(ctx context.Context) error {
	return nil
}
