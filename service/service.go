package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum-optimism/infra/op-recorder/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config selects which servers run. An empty address leaves that server off.
type Config struct {
	HealthzAddr string
	MetricsAddr string
	Log         log.Logger
}

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	cfg Config
	log log.Logger
}

func New(cfg Config) *Service {
	logger := cfg.Log
	if logger == nil {
		logger = log.Root()
	}
	logger = logger.New("component", "service")
	return &Service{
		Healthz: NewHealthzServer(logger),
		Metrics: &MetricsServer{},
		cfg:     cfg,
		log:     logger,
	}
}

func (s *Service) Start(ctx context.Context) {
	s.log.Info("service starting")

	if addr := s.cfg.HealthzAddr; addr != "" {
		go func() {
			s.log.Info("starting healthz server", "addr", addr)
			if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("error starting healthz server", "err", err)
				metrics.RecordErrorDetails("healthz_server", err)
			}
		}()
	}

	if addr := s.cfg.MetricsAddr; addr != "" {
		go func() {
			s.log.Info("starting metrics server", "addr", addr)
			if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	_ = s.Metrics.Shutdown()
	s.log.Info("metrics stopped")

	s.log.Info("service stopped")
}
