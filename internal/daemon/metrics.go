package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sereno-app/sereno/internal/config"
	"go.uber.org/zap"
)

// MetricsServer serves /metrics over HTTP.
type MetricsServer struct {
	addr     string
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewMetricsServer returns nil when no metrics address is configured.
func NewMetricsServer(cfg *config.Config, reg *prometheus.Registry, logger *zap.Logger) *MetricsServer {
	if cfg.Metrics.Addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &MetricsServer{
		addr:   cfg.Metrics.Addr,
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		logger: logger,
	}
}

// Start listens and serves in the background.
func (m *MetricsServer) Start() error {
	l, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	m.listener = l
	m.logger.Info("metrics server starting", zap.String("addr", l.Addr().String()))
	go func() {
		if err := m.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (m *MetricsServer) Addr() string {
	if m.listener == nil {
		return m.addr
	}
	return m.listener.Addr().String()
}

func (m *MetricsServer) Stop(ctx context.Context) {
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Warn("metrics server shutdown", zap.Error(err))
	}
}
