package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/ethereum-optimism/infra/op-testengine/metrics"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"
)

type Config struct {
	Log           log.Logger
	HealthzAddr   string
	MetricsConfig opmetrics.CLIConfig
}

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	cfg Config
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.HealthzAddr == "" {
		cfg.HealthzAddr = net.JoinHostPort(HealthzHost, HealthzPort)
	}
	return &Service{
		Healthz: &HealthzServer{log: cfg.Log},
		Metrics: &MetricsServer{},
		cfg:     cfg,
	}
}

func (s *Service) Start(ctx context.Context) {
	s.cfg.Log.Info("service starting")

	go func() {
		addr := s.cfg.HealthzAddr
		s.cfg.Log.Info("starting healthz server", "addr", addr)
		if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Log.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("healthz_server", err)
		}
	}()

	if s.cfg.MetricsConfig.Enabled {
		go func() {
			addr := net.JoinHostPort(s.cfg.MetricsConfig.ListenAddr, strconv.Itoa(s.cfg.MetricsConfig.ListenPort))
			s.cfg.Log.Info("starting metrics server", "addr", addr)
			if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.cfg.Log.Error("error starting metrics server", "err", err)
				metrics.RecordErrorDetails("metrics_server", err)
			}
		}()
	}

	s.cfg.Log.Info("service started")
}

func (s *Service) Shutdown() {
	s.cfg.Log.Info("service shutting down")
	s.Healthz.SetStopped(true)

	_ = s.Healthz.Shutdown()
	s.cfg.Log.Info("healthz stopped")

	_ = s.Metrics.Shutdown()
	s.cfg.Log.Info("metrics stopped")

	s.cfg.Log.Info("service stopped")
}
