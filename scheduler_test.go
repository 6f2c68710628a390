package stepper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func TestIntervalScheduler_RunOnce(t *testing.T) {
	calls := 0
	scheduler := NewIntervalScheduler(0, testLogger())
	scheduler.RegisterCallback(func(ctx context.Context) error {
		calls++
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, scheduler.Start(ctx))
	assert.Equal(t, 1, calls)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, calls, "run-once mode must not schedule more runs")
	assert.Equal(t, int64(1), scheduler.Runs())
	require.NoError(t, scheduler.WaitForShutdown(ctx))
}

func TestIntervalScheduler_Periodic(t *testing.T) {
	callChan := make(chan struct{}, 10)
	expectedCalls := 4

	scheduler := NewIntervalScheduler(10*time.Millisecond, testLogger())
	scheduler.RegisterCallback(func(ctx context.Context) error {
		callChan <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, scheduler.Start(ctx))

	for i := 0; i < expectedCalls; i++ {
		select {
		case <-callChan:
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for run %d/%d", i+1, expectedCalls)
		}
	}

	require.NoError(t, scheduler.Stop())
	require.NoError(t, scheduler.WaitForShutdown(ctx))

	// drain a run that may have started before Stop
	for len(callChan) > 0 {
		<-callChan
	}
	select {
	case <-callChan:
		t.Fatal("unexpected run after shutdown")
	case <-time.After(50 * time.Millisecond):
	}
	assert.True(t, scheduler.Stopped())
}

func TestIntervalScheduler_CallbackError(t *testing.T) {
	expectedError := errors.New("run failed")

	t.Run("run once", func(t *testing.T) {
		scheduler := NewIntervalScheduler(0, testLogger())
		scheduler.RegisterCallback(func(ctx context.Context) error { return expectedError })
		assert.ErrorIs(t, scheduler.Start(context.Background()), expectedError)
	})

	t.Run("first periodic run", func(t *testing.T) {
		scheduler := NewIntervalScheduler(time.Hour, testLogger())
		scheduler.RegisterCallback(func(ctx context.Context) error { return expectedError })
		assert.ErrorIs(t, scheduler.Start(context.Background()), expectedError)
		require.NoError(t, scheduler.WaitForShutdown(context.Background()))
	})

	t.Run("later periodic runs keep going", func(t *testing.T) {
		calls := make(chan struct{}, 10)
		first := true
		scheduler := NewIntervalScheduler(5*time.Millisecond, testLogger())
		scheduler.RegisterCallback(func(ctx context.Context) error {
			calls <- struct{}{}
			if first {
				first = false
				return nil
			}
			return expectedError
		})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		require.NoError(t, scheduler.Start(ctx))
		for i := 0; i < 3; i++ {
			select {
			case <-calls:
			case <-time.After(time.Second):
				t.Fatal("scheduler stopped after a failing run")
			}
		}
		require.NoError(t, scheduler.Stop())
		require.NoError(t, scheduler.WaitForShutdown(ctx))
	})
}

func TestIntervalScheduler_NoCallback(t *testing.T) {
	scheduler := NewIntervalScheduler(0, testLogger())
	assert.Error(t, scheduler.Start(context.Background()))
}

func TestIntervalScheduler_ContextCancel(t *testing.T) {
	scheduler := NewIntervalScheduler(time.Hour, testLogger())
	scheduler.RegisterCallback(func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, scheduler.Start(ctx))
	assert.False(t, scheduler.Stopped())

	cancel()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, scheduler.WaitForShutdown(waitCtx))
	assert.True(t, scheduler.Stopped())
	// stopping twice is harmless
	require.NoError(t, scheduler.Stop())
	require.NoError(t, scheduler.Stop())
}
