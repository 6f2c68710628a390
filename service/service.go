// Package service runs the HTTP side of op-stepper: health, pool status and metrics.
package service

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ethereum-optimism/infra/op-stepper/metrics"
	"github.com/ethereum/go-ethereum/log"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = "7300"
)

// Config contains service configuration
type Config struct {
	Log         log.Logger
	Pool        PoolStatus
	HealthzAddr string // defaults to HealthzHost:HealthzPort
	MetricsAddr string // defaults to MetricsHost:MetricsPort
	// DisableMetrics skips the metrics server
	DisableMetrics bool
}

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	log         log.Logger
	healthzAddr string
	metricsAddr string
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.HealthzAddr == "" {
		cfg.HealthzAddr = net.JoinHostPort(HealthzHost, HealthzPort)
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = net.JoinHostPort(MetricsHost, MetricsPort)
	}
	logger := cfg.Log.New("component", "service")
	s := &Service{
		Healthz:     NewHealthzServer(logger, cfg.Pool),
		log:         logger,
		healthzAddr: cfg.HealthzAddr,
		metricsAddr: cfg.MetricsAddr,
	}
	if !cfg.DisableMetrics {
		s.Metrics = &MetricsServer{}
	}
	return s
}

func (s *Service) Start(ctx context.Context) {
	s.log.Info("service starting")

	go func() {
		s.log.Info("starting healthz server", "addr", s.healthzAddr)
		if err := s.Healthz.Start(ctx, s.healthzAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("healthz_server", err)
		}
	}()

	if s.Metrics != nil {
		go func() {
			s.log.Info("starting metrics server", "addr", s.metricsAddr)
			if err := s.Metrics.Start(ctx, s.metricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("error starting metrics server", "err", err)
				metrics.RecordErrorDetails("metrics_server", err)
			}
		}()
	}

	s.log.Info("service started")
}

func (s *Service) Shutdown() {
	s.log.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	s.log.Info("healthz stopped")

	if s.Metrics != nil {
		_ = s.Metrics.Shutdown()
		s.log.Info("metrics stopped")
	}

	s.log.Info("service stopped")
}
