package steps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-stepper/registry"
	"github.com/ethereum-optimism/infra/op-stepper/types"
	"github.com/ethereum-optimism/optimism/op-service/client"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry(registry.Config{Log: log.NewLogger(log.DiscardHandler())})
	require.NoError(t, Register(reg, NewStatusClient(nil)))
	return reg
}

func invoke(t *testing.T, reg *registry.Registry, driver types.DriverConfig, testObject, name string, data types.TestData) (*registry.StepContext, error) {
	t.Helper()
	h, md, err := reg.Resolve(testObject, name)
	require.NoError(t, err)
	step := types.StepSpec{TestObject: testObject, Name: name}
	args, err := registry.BindParameters(h, md, step, data)
	require.NoError(t, err)

	sc := &registry.StepContext{Step: step, Driver: driver}
	return sc, h.Invoke(context.Background(), sc, args)
}

func TestDefinitionsCoverEveryKind(t *testing.T) {
	kinds := map[registry.ParamKind]bool{}
	for _, d := range Definitions(nil) {
		kinds[d.Handler.Kind()] = true
	}
	assert.Len(t, kinds, 4)

	reg := newTestRegistry(t)
	assert.Equal(t, []string{
		"builtin::assertCapabilities",
		"builtin::knownIssue",
		"builtin::log",
		"builtin::requirePlatform",
		"builtin::skip",
		"builtin::wait",
		"driver::status",
	}, reg.Steps())
}

func TestDriverStatus(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		wantErr string
	}{
		{name: "ready", code: http.StatusOK, body: `{"value":{"ready":true,"message":"ok"}}`},
		{name: "not ready", code: http.StatusOK, body: `{"value":{"ready":false,"message":"busy"}}`, wantErr: "hub not ready: busy"},
		{name: "server error", code: http.StatusInternalServerError, body: "oops", wantErr: "returned 500: oops"},
		{name: "bad json", code: http.StatusOK, body: "not json", wantErr: "failed to decode status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/wd/hub/status", r.URL.Path)
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			reg := newTestRegistry(t)
			driver := types.DriverConfig{Name: "emu", HubURL: srv.URL + "/wd/hub/"}
			sc, err := invoke(t, reg, driver, DriverObject, "status", nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"hub " + driver.HubURL + " ready: ok"}, sc.Lines())
		})
	}
}

func TestDriverStatusNotReadyIsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":{"ready":false}}`))
	}))
	defer srv.Close()

	c := NewStatusClient(log.NewLogger(log.DiscardHandler()), client.WithTransport(srv.Client().Transport))
	_, err := c.Check(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrHubNotReady)
}

func TestStatusClientCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/wd/hub/status", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "grid-token", r.Header.Get("X-Grid-Token"))
		_, _ = w.Write([]byte(`{"value":{"ready":true,"message":"up"}}`))
	}))
	defer srv.Close()

	c := NewStatusClient(log.NewLogger(log.DiscardHandler()), client.WithHeader(http.Header{"X-Grid-Token": []string{"grid-token"}}))
	for _, hubURL := range []string{srv.URL + "/wd/hub", srv.URL + "/wd/hub/"} {
		status, err := c.Check(context.Background(), hubURL)
		require.NoError(t, err, hubURL)
		assert.True(t, status.Value.Ready)
		assert.Equal(t, "up", status.Value.Message)
	}

	_, err := c.Check(context.Background(), "")
	require.ErrorIs(t, err, client.ErrNoEndpoint)
}

func TestSingleParamSteps(t *testing.T) {
	reg := newTestRegistry(t)
	driver := types.DriverConfig{Name: "emu"}

	sc, err := invoke(t, reg, driver, BuiltinObject, "log", types.TestData{"message": "\x1b[1mhello\x1b[0m"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, sc.Lines())

	_, err = invoke(t, reg, driver, BuiltinObject, "knownIssue", types.TestData{"issue": "BUG-12"})
	assert.True(t, types.IsKnownIssue(err))

	_, err = invoke(t, reg, driver, BuiltinObject, "skip", types.TestData{"reason": "flaky hub"})
	assert.True(t, types.IsSkip(err))

	sc, err = invoke(t, reg, driver, BuiltinObject, "wait", types.TestData{"wait": "1ms"})
	require.NoError(t, err)
	assert.Equal(t, []string{"waited 1ms"}, sc.Lines())

	_, err = invoke(t, reg, driver, BuiltinObject, "wait", types.TestData{"wait": "soon"})
	require.ErrorContains(t, err, "invalid wait duration")

	_, err = invoke(t, reg, driver, BuiltinObject, "wait", types.TestData{"wait": "-1s"})
	require.ErrorContains(t, err, "cannot be negative")
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := wait(ctx, &registry.StepContext{}, "1m")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestRequirePlatform(t *testing.T) {
	reg := newTestRegistry(t)
	data := types.TestData{"platforms": []any{"iOS", "android"}}

	_, err := invoke(t, reg, types.DriverConfig{PlatformName: "Android"}, BuiltinObject, "requirePlatform", data)
	require.NoError(t, err, "platform match is case-insensitive")

	_, err = invoke(t, reg, types.DriverConfig{PlatformName: "Windows"}, BuiltinObject, "requirePlatform", data)
	assert.True(t, types.IsSkip(err))
}

func TestAssertCapabilities(t *testing.T) {
	reg := newTestRegistry(t)
	driver := types.DriverConfig{
		Name:         "pixel",
		PlatformName: "Android",
		UDID:         "emulator-5554",
		Capabilities: map[string]string{"automationName": "UiAutomator2"},
	}

	_, err := invoke(t, reg, driver, BuiltinObject, "assertCapabilities", types.TestData{
		"capabilities": map[string]any{"platformName": "Android", "udid": "emulator-5554", "automationName": "UiAutomator2"},
	})
	require.NoError(t, err)

	_, err = invoke(t, reg, driver, BuiltinObject, "assertCapabilities", types.TestData{
		"capabilities": map[string]any{"platformName": "iOS", "deviceName": "iPhone"},
	})
	require.Error(t, err)
	assert.Equal(t, `capability mismatch on pixel: deviceName: missing, want "iPhone"; platformName: got "Android", want "iOS"`, err.Error())
}
