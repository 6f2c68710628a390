package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-stepper/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfigs(n int) []types.DriverConfig {
	cfgs := make([]types.DriverConfig, 0, n)
	for i := 0; i < n; i++ {
		cfgs = append(cfgs, types.DriverConfig{
			Name:         fmt.Sprintf("emulator-%d", i),
			ConfigType:   types.ConfigTypeEmulator,
			PlatformName: "Android",
			HubURL:       fmt.Sprintf("http://127.0.0.1:%d/wd/hub", 4723+i),
		})
	}
	return cfgs
}

func newTestPool(t *testing.T, n int, timeout time.Duration) *Pool {
	t.Helper()
	p := New(Config{
		Log:         log.NewLogger(log.DiscardHandler()),
		LockTimeout: timeout,
	})
	require.NoError(t, p.Load(testConfigs(n)))
	return p
}

func TestLoad(t *testing.T) {
	t.Run("rejects config without hub URL", func(t *testing.T) {
		cfgs := testConfigs(2)
		cfgs[1].HubURL = ""

		p := New(Config{Log: log.NewLogger(log.DiscardHandler())})
		require.NoError(t, p.Load(cfgs))
		assert.Equal(t, 1, p.Count())

		e, err := p.Lock(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "emulator-0", e.Key())
	})

	t.Run("fails when every config is invalid", func(t *testing.T) {
		cfgs := testConfigs(2)
		for i := range cfgs {
			cfgs[i].HubURL = ""
		}

		p := New(Config{Log: log.NewLogger(log.DiscardHandler())})
		err := p.Load(cfgs)
		require.ErrorIs(t, err, ErrConfigNotFound)
		assert.Equal(t, 0, p.Count())
	})

	t.Run("keeps duplicate keys", func(t *testing.T) {
		cfgs := testConfigs(2)
		cfgs[1].Name = cfgs[0].Name

		p := New(Config{Log: log.NewLogger(log.DiscardHandler())})
		require.NoError(t, p.Load(cfgs))
		assert.Equal(t, 2, p.Count())
	})

	t.Run("keeps unnamed devices sharing a hub", func(t *testing.T) {
		device := func(udid string) types.DriverConfig {
			return types.DriverConfig{
				ConfigType:   types.ConfigTypeRealDevice,
				PlatformName: "iOS",
				HubURL:       "http://hub:4723/wd/hub",
				UDID:         udid,
			}
		}

		p := New(Config{Log: log.NewLogger(log.DiscardHandler())})
		require.NoError(t, p.Load([]types.DriverConfig{device("dev-1"), device("dev-2")}))
		assert.Equal(t, 2, p.Count())

		a, err := p.Lock(context.Background())
		require.NoError(t, err)
		b, err := p.Lock(context.Background())
		require.NoError(t, err)
		assert.ElementsMatch(t,
			[]string{"iOS@http://hub:4723/wd/hub/dev-1", "iOS@http://hub:4723/wd/hub/dev-2"},
			[]string{a.Key(), b.Key()})
		require.NoError(t, p.Unlock(a))
		require.NoError(t, p.Unlock(b))
	})
}

func TestLockEmptyPool(t *testing.T) {
	p := New(Config{Log: log.NewLogger(log.DiscardHandler())})
	_, err := p.Lock(context.Background())
	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLockUnlock(t *testing.T) {
	p := newTestPool(t, 2, 0)
	ctx := context.Background()

	assert.True(t, p.IsConsumable())

	a, err := p.Lock(ctx)
	require.NoError(t, err)
	b, err := p.Lock(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, a.Key(), b.Key(), "two holders must never share an entry")
	assert.False(t, p.IsConsumable())
	assert.Equal(t, Stats{Total: 2, Idle: 0, Busy: 2}, p.Stats())

	require.NoError(t, p.Unlock(a))
	assert.True(t, p.IsConsumable())
	assert.Equal(t, Stats{Total: 2, Idle: 1, Busy: 1}, p.Stats())

	require.NoError(t, p.Unlock(b))
	assert.Equal(t, Stats{Total: 2, Idle: 2, Busy: 0}, p.Stats())
}

func TestLockBlocksUntilUnlock(t *testing.T) {
	p := newTestPool(t, 1, 0)
	ctx := context.Background()

	held, err := p.Lock(ctx)
	require.NoError(t, err)

	got := make(chan *Entry, 1)
	go func() {
		e, err := p.Lock(ctx)
		if err == nil {
			got <- e
		}
	}()

	select {
	case <-got:
		t.Fatal("Lock returned while the only entry was held")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, p.Unlock(held))

	select {
	case e := <-got:
		assert.Equal(t, held.Key(), e.Key())
		require.NoError(t, p.Unlock(e))
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by Unlock")
	}
}

func TestLockCancelled(t *testing.T) {
	p := newTestPool(t, 1, 0)

	held, err := p.Lock(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Lock(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrCancelled)
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled Lock did not return")
	}

	// The cancelled waiter must not have taken anything
	assert.Equal(t, Stats{Total: 1, Idle: 0, Busy: 1}, p.Stats())
	require.NoError(t, p.Unlock(held))
	assert.Equal(t, Stats{Total: 1, Idle: 1, Busy: 0}, p.Stats())
}

func TestLockAlreadyCancelledContext(t *testing.T) {
	p := newTestPool(t, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Lock(ctx)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, p.Stats().Busy)
}

func TestLockTimeout(t *testing.T) {
	p := newTestPool(t, 1, 30*time.Millisecond)

	held, err := p.Lock(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Lock(context.Background())
	require.ErrorIs(t, err, ErrPoolExhausted)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 1, p.Stats().Busy)

	require.NoError(t, p.Unlock(held))
}

func TestUnlockIdleEntryIsNoop(t *testing.T) {
	p := newTestPool(t, 1, 0)

	e, err := p.Lock(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Unlock(e))

	assert.NotPanics(t, func() {
		require.NoError(t, p.Unlock(e))
		require.NoError(t, p.Unlock(nil))
	})
	assert.Equal(t, Stats{Total: 1, Idle: 1, Busy: 0}, p.Stats())
}

func TestReload(t *testing.T) {
	var calls atomic.Int32
	p := New(Config{
		Log: log.NewLogger(log.DiscardHandler()),
		Source: func() ([]types.DriverConfig, error) {
			calls.Add(1)
			return testConfigs(3), nil
		},
	})

	require.NoError(t, p.Reload())
	assert.Equal(t, 3, p.Count())

	old, err := p.Lock(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Reload())
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, Stats{Total: 3, Idle: 3, Busy: 0}, p.Stats(), "reload starts from all-idle")

	err = p.Unlock(old)
	require.ErrorIs(t, err, ErrStaleEntry)
	assert.Equal(t, Stats{Total: 3, Idle: 3, Busy: 0}, p.Stats())
}

func TestReloadErrors(t *testing.T) {
	t.Run("no source", func(t *testing.T) {
		p := New(Config{Log: log.NewLogger(log.DiscardHandler())})
		require.Error(t, p.Reload())
	})

	t.Run("source error keeps previous contents", func(t *testing.T) {
		fail := false
		p := New(Config{
			Log: log.NewLogger(log.DiscardHandler()),
			Source: func() ([]types.DriverConfig, error) {
				if fail {
					return nil, errors.New("boom")
				}
				return testConfigs(2), nil
			},
		})
		require.NoError(t, p.Reload())

		fail = true
		require.Error(t, p.Reload())
		assert.Equal(t, 2, p.Count())
	})
}

func TestReloadWakesWaiters(t *testing.T) {
	first := true
	p := New(Config{
		Log: log.NewLogger(log.DiscardHandler()),
		Source: func() ([]types.DriverConfig, error) {
			if first {
				first = false
				return testConfigs(1), nil
			}
			return testConfigs(2), nil
		},
	})
	require.NoError(t, p.Reload())

	held, err := p.Lock(context.Background())
	require.NoError(t, err)

	got := make(chan *Entry, 1)
	go func() {
		e, err := p.Lock(context.Background())
		if err == nil {
			got <- e
		}
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, p.Reload())

	select {
	case e := <-got:
		require.NoError(t, p.Unlock(e))
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken by reload")
	}
	require.ErrorIs(t, p.Unlock(held), ErrStaleEntry)
}

// Pool of 2, 5 workers: never more than 2 holders at once and everyone finishes
func TestConcurrentHoldersBoundedByPoolSize(t *testing.T) {
	p := newTestPool(t, 2, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		holders    atomic.Int32
		maxHolders atomic.Int32
		owners     sync.Map
		wg         sync.WaitGroup
		violations atomic.Int32
	)

	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				e, err := p.Lock(ctx)
				if err != nil {
					violations.Add(1)
					return
				}
				if _, loaded := owners.LoadOrStore(e.Key(), worker); loaded {
					violations.Add(1)
				}
				n := holders.Add(1)
				for {
					m := maxHolders.Load()
					if n <= m || maxHolders.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				holders.Add(-1)
				owners.Delete(e.Key())
				if err := p.Unlock(e); err != nil {
					violations.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int32(0), violations.Load())
	assert.LessOrEqual(t, maxHolders.Load(), int32(2))
	assert.Equal(t, Stats{Total: 2, Idle: 2, Busy: 0}, p.Stats())
}
