package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum-optimism/infra/op-stepper/pool"
	"github.com/ethereum-optimism/infra/op-stepper/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(t *testing.T) *pool.Pool {
	t.Helper()
	p := pool.New(pool.Config{Log: log.NewLogger(log.DiscardHandler())})
	require.NoError(t, p.Load([]types.DriverConfig{
		{Name: "pixel-7", ConfigType: types.ConfigTypeEmulator, PlatformName: "Android", HubURL: "http://127.0.0.1:4723/wd/hub"},
		{Name: "pixel-8", ConfigType: types.ConfigTypeEmulator, PlatformName: "Android", HubURL: "http://127.0.0.1:4724/wd/hub"},
	}))
	return p
}

func TestHealthz(t *testing.T) {
	h := NewHealthzServer(log.NewLogger(log.DiscardHandler()), nil)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatus(t *testing.T) {
	t.Run("reports pool entries", func(t *testing.T) {
		p := testPool(t)
		e, err := p.Lock(context.Background())
		require.NoError(t, err)
		defer func() { require.NoError(t, p.Unlock(e)) }()

		h := NewHealthzServer(log.NewLogger(log.DiscardHandler()), p)
		rec := httptest.NewRecorder()
		h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, pool.Stats{Total: 2, Idle: 1, Busy: 1}, got.Pool)
		require.Len(t, got.Entries, 2)
		assert.Equal(t, "pixel-7", got.Entries[0].Key)
		assert.False(t, got.Entries[0].Idle)
		assert.True(t, got.Entries[1].Idle)
	})

	t.Run("unavailable without a pool", func(t *testing.T) {
		h := NewHealthzServer(log.NewLogger(log.DiscardHandler()), nil)
		rec := httptest.NewRecorder()
		h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestMetricsHandler(t *testing.T) {
	m := &MetricsServer{}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewDefaults(t *testing.T) {
	s := New(Config{Log: log.NewLogger(log.DiscardHandler())})
	assert.Equal(t, "0.0.0.0:8080", s.healthzAddr)
	assert.Equal(t, "0.0.0.0:7300", s.metricsAddr)
	require.NotNil(t, s.Metrics)
	// shutting down servers that never started is harmless
	s.Shutdown()

	s = New(Config{Log: log.NewLogger(log.DiscardHandler()), DisableMetrics: true})
	assert.Nil(t, s.Metrics)
	s.Shutdown()
}
