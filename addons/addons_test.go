package addons

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAddon struct {
	name     string
	events   *[]string
	startErr error
}

func (a *recordingAddon) Start(ctx context.Context) error {
	*a.events = append(*a.events, "start "+a.name)
	return a.startErr
}

func (a *recordingAddon) Stop(ctx context.Context) error {
	*a.events = append(*a.events, "stop "+a.name)
	return nil
}

func TestAddonsManager(t *testing.T) {
	deps := Deps{Log: log.NewLogger(log.DiscardHandler())}

	t.Run("starts and stops in order", func(t *testing.T) {
		var events []string
		m := NewAddonsManager(deps,
			WithAddon(&recordingAddon{name: "a", events: &events}),
			WithAddon(&recordingAddon{name: "b", events: &events}),
		)
		require.Equal(t, 2, m.Len())
		require.NoError(t, m.Start(context.Background()))
		require.NoError(t, m.Stop(context.Background()))
		assert.Equal(t, []string{"start a", "start b", "stop a", "stop b"}, events)
	})

	t.Run("start error stops early", func(t *testing.T) {
		var events []string
		m := NewAddonsManager(deps,
			WithAddon(&recordingAddon{name: "a", events: &events, startErr: errors.New("nope")}),
			WithAddon(&recordingAddon{name: "b", events: &events}),
		)
		assert.EqualError(t, m.Start(context.Background()), "nope")
		assert.Equal(t, []string{"start a"}, events)
	})

	t.Run("hub check is registered", func(t *testing.T) {
		m := NewAddonsManager(deps, WithHubCheck())
		assert.Equal(t, 1, m.Len())
	})

	t.Run("nil manager is a no-op", func(t *testing.T) {
		var m *AddonsManager
		assert.NoError(t, m.Start(context.Background()))
		assert.NoError(t, m.Stop(context.Background()))
		assert.Zero(t, m.Len())
	})
}
