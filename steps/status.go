package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/client"
	"github.com/ethereum/go-ethereum/log"
)

// ErrHubNotReady is returned when a hub answers /status without being ready
var ErrHubNotReady = errors.New("hub not ready")

const defaultStatusTimeout = 10 * time.Second

// HubStatus is the body of a WebDriver /status response
type HubStatus struct {
	Value struct {
		Ready   bool   `json:"ready"`
		Message string `json:"message"`
	} `json:"value"`
}

// StatusClient queries the /status endpoint of driver hubs
type StatusClient struct {
	log     log.Logger
	opts    []client.BasicHTTPClientOption
	timeout time.Duration
}

// NewStatusClient creates a client. The options are applied to the HTTP client of every hub.
func NewStatusClient(logger log.Logger, opts ...client.BasicHTTPClientOption) *StatusClient {
	if logger == nil {
		logger = log.Root()
	}
	return &StatusClient{
		log:     logger.New("component", "status-client"),
		opts:    opts,
		timeout: defaultStatusTimeout,
	}
}

// Check fetches {hubURL}/status and fails unless the hub reports ready
func (c *StatusClient) Check(ctx context.Context, hubURL string) (*HubStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	hub := client.NewBasicHTTPClient(hubURL, c.log, c.opts...)
	resp, err := hub.Get(ctx, "status", nil, http.Header{"Accept": []string{"application/json"}})
	if err != nil {
		return nil, fmt.Errorf("status request to %s failed: %w", hubURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status request to %s returned %d: %s", hubURL, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var status HubStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status from %s: %w", hubURL, err)
	}
	if !status.Value.Ready {
		return &status, fmt.Errorf("%w: %s", ErrHubNotReady, status.Value.Message)
	}
	return &status, nil
}
