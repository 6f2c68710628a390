// Package pool hands out driver configs to concurrent workers.
//
// Each config can be held by at most one worker at a time. Lock blocks until a
// config is idle, the caller's context ends, or the configured lock timeout
// passes. Unlock returns the config and wakes every waiter so they rescan.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-stepper/metrics"
	"github.com/ethereum-optimism/infra/op-stepper/types"
	"github.com/ethereum/go-ethereum/log"
)

// Source produces the driver configs for a reload
type Source func() ([]types.DriverConfig, error)

// Config contains pool configuration
type Config struct {
	Log         log.Logger
	LockTimeout time.Duration // 0 waits until the context ends
	Source      Source        // used by Reload
}

// Stats is a point-in-time view of the pool
type Stats struct {
	Total int `json:"total"`
	Idle  int `json:"idle"`
	Busy  int `json:"busy"`
}

// Entry is a locked driver config. It must be handed back with Unlock exactly once.
type Entry struct {
	id         int
	generation uint64
	config     types.DriverConfig
}

// Config returns the driver config held by this entry
func (e *Entry) Config() types.DriverConfig {
	return e.config
}

// Key returns the key of the held driver config
func (e *Entry) Key() string {
	return e.config.Key()
}

// Pool is a concurrency-safe wrapper around Store
type Pool struct {
	log         log.Logger
	lockTimeout time.Duration
	source      Source

	mu    sync.Mutex
	store *Store
	// avail is closed and replaced whenever an entry may have become idle
	avail chan struct{}
}

// New creates an empty pool. Call Load or Reload before locking.
func New(cfg Config) *Pool {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Pool{
		log:         cfg.Log.New("component", "config-pool"),
		lockTimeout: cfg.LockTimeout,
		source:      cfg.Source,
		store:       NewStore(),
		avail:       make(chan struct{}),
	}
}

// Load validates cfgs and replaces the pool contents with the valid ones.
// Configs that fail validation are logged and dropped. If none remain the
// pool is left untouched and ErrConfigNotFound is returned.
func (p *Pool) Load(cfgs []types.DriverConfig) error {
	valid := p.filterValid(cfgs)
	if len(valid) == 0 {
		metrics.RecordError("config_not_found")
		return fmt.Errorf("%w: all %d configs rejected", ErrConfigNotFound, len(cfgs))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadLocked(valid)
	return nil
}

// Reload re-reads configs from the pool Source and swaps them in atomically.
// Callers must make sure no entries of the previous load are still held;
// this is logged but not enforced, and such entries are ignored on Unlock.
func (p *Pool) Reload() error {
	if p.source == nil {
		return errors.New("pool has no config source to reload from")
	}
	cfgs, err := p.source()
	if err != nil {
		metrics.RecordErrorDetails("pool_reload", err)
		return fmt.Errorf("failed to read driver configs: %w", err)
	}
	return p.Load(cfgs)
}

func (p *Pool) filterValid(cfgs []types.DriverConfig) []types.DriverConfig {
	valid := make([]types.DriverConfig, 0, len(cfgs))
	seen := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		if err := types.ValidateDriverConfig(cfg); err != nil {
			p.log.Warn("Rejecting driver config", "config", cfg.Key(), "error", err)
			metrics.RecordRejectedConfig()
			continue
		}
		// Duplicates are kept: only invalid configs are rejected
		if seen[cfg.Key()] {
			p.log.Warn("Driver config key is not unique, results will not tell the entries apart", "config", cfg.Key())
		}
		seen[cfg.Key()] = true
		valid = append(valid, cfg)
	}
	return valid
}

func (p *Pool) loadLocked(cfgs []types.DriverConfig) {
	if busy := p.store.BusyCount(); busy > 0 {
		p.log.Warn("Reloading pool while entries are held", "busy", busy)
	}
	p.store.Reset(p.store.Generation()+1, cfgs)
	p.log.Info("Driver config pool loaded", "entries", len(cfgs), "generation", p.store.Generation())
	p.recordStateLocked()
	p.broadcastLocked()
}

// Lock returns an idle entry and marks it busy, blocking until one is available.
// It fails with ErrCancelled when ctx ends first and with ErrPoolExhausted when
// the lock timeout passes. No entry is marked busy when an error is returned.
func (p *Pool) Lock(ctx context.Context) (*Entry, error) {
	start := time.Now()

	var timeout <-chan time.Time
	if p.lockTimeout > 0 {
		timer := time.NewTimer(p.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		if ctx.Err() != nil {
			metrics.RecordLockError("cancelled")
			return nil, fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
		}

		p.mu.Lock()
		if p.store.Len() == 0 {
			p.mu.Unlock()
			metrics.RecordLockError("empty")
			return nil, ErrConfigNotFound
		}
		if e := p.store.acquireFirstIdle(); e != nil {
			p.recordStateLocked()
			p.mu.Unlock()
			metrics.RecordLockWait(time.Since(start))
			return &Entry{id: e.id, generation: e.generation, config: e.config}, nil
		}
		// Taken under the mutex so an Unlock after we release it still wakes us
		wait := p.avail
		p.mu.Unlock()

		select {
		case <-wait:
			// Another waiter may win the freed entry, so scan again
		case <-ctx.Done():
			metrics.RecordLockError("cancelled")
			return nil, fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
		case <-timeout:
			metrics.RecordLockError("exhausted")
			p.log.Error("No driver config became idle in time", "timeout", p.lockTimeout, "waited", time.Since(start))
			return nil, fmt.Errorf("%w: no entry became idle within %s", ErrPoolExhausted, p.lockTimeout)
		}
	}
}

// Unlock marks the entry idle again and wakes waiters.
// Unlocking an entry that is already idle is logged and ignored.
func (p *Pool) Unlock(e *Entry) error {
	if e == nil {
		p.log.Error("Unlock called with nil entry")
		metrics.RecordError("unlock_nil_entry")
		return nil
	}

	p.mu.Lock()
	stale, released := p.store.release(e.id, e.generation)
	if released {
		p.recordStateLocked()
		p.broadcastLocked()
	}
	p.mu.Unlock()

	if stale {
		p.log.Warn("Ignoring unlock of entry from a previous load", "config", e.Key(), "generation", e.generation)
		metrics.RecordError("unlock_stale_entry")
		return ErrStaleEntry
	}
	if !released {
		p.log.Error("Unlock of driver config that is already idle", "config", e.Key())
		metrics.RecordError("unlock_idle_entry")
	}
	return nil
}

// IsConsumable reports whether an entry could be locked right now without waiting
func (p *Pool) IsConsumable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.IdleCount() > 0
}

// Count returns the number of loaded entries
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Len()
}

// Stats returns the idle/busy split of the pool
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	idle := p.store.IdleCount()
	return Stats{Total: p.store.Len(), Idle: idle, Busy: p.store.Len() - idle}
}

// Snapshot returns the status of every entry
func (p *Pool) Snapshot() []EntryStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Snapshot()
}

func (p *Pool) broadcastLocked() {
	close(p.avail)
	p.avail = make(chan struct{})
}

func (p *Pool) recordStateLocked() {
	idle := p.store.IdleCount()
	metrics.RecordPoolState(idle, p.store.Len()-idle)
}
