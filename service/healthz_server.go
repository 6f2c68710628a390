package service

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum-optimism/infra/op-stepper/pool"
	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

// PoolStatus is the read-only view of the driver config pool served on /status
type PoolStatus interface {
	Stats() pool.Stats
	Snapshot() []pool.EntryStatus
}

// StatusResponse is the body of /status
type StatusResponse struct {
	Pool    pool.Stats         `json:"pool"`
	Entries []pool.EntryStatus `json:"entries"`
}

type HealthzServer struct {
	log    log.Logger
	pool   PoolStatus
	ctx    context.Context
	server *http.Server
}

func NewHealthzServer(logger log.Logger, p PoolStatus) *HealthzServer {
	return &HealthzServer{log: logger, pool: p}
}

// Handler serves /healthz and /status with permissive CORS
func (h *HealthzServer) Handler() http.Handler {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	hdlr.HandleFunc("/status", h.HandleStatus)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(hdlr)
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	h.server = &http.Server{
		Handler: h.Handler(),
		Addr:    addr,
	}
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

// HandleStatus reports the idle/busy split and every pool entry
func (h *HealthzServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		http.Error(w, "pool not initialized", http.StatusServiceUnavailable)
		return
	}
	resp := StatusResponse{
		Pool:    h.pool.Stats(),
		Entries: h.pool.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode status", "err", err)
	}
}
