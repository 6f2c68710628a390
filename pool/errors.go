package pool

import "errors"

var (
	// ErrConfigNotFound means the pool holds no valid driver config
	ErrConfigNotFound = errors.New("no valid driver config found")

	// ErrPoolExhausted means no entry became idle within the lock timeout
	ErrPoolExhausted = errors.New("driver config pool exhausted")

	// ErrCancelled means the caller's context ended while waiting for an entry
	ErrCancelled = errors.New("driver config lock cancelled")

	// ErrStaleEntry means an entry from a previous load was handed back
	ErrStaleEntry = errors.New("driver config entry belongs to a previous load")
)
