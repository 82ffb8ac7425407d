package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maxkimambo/energy-etl/internal/logger"
)

// MetricsServer exposes a registry on /metrics and answers /healthz
type MetricsServer struct {
	srv *http.Server
}

// NewMetricsServer builds the server without starting it
func NewMetricsServer(addr string, g prometheus.Gatherer) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})
	return &MetricsServer{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Handler returns the server's routes
func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

// Start serves in the background until Shutdown
func (m *MetricsServer) Start() {
	go func() {
		logger.Op.Infof("Metrics server listening on %s", m.srv.Addr)
		if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Op.WithFields(map[string]interface{}{"addr": m.srv.Addr, "error": err.Error()}).Error("Metrics server failed")
		}
	}()
}

// Shutdown stops the server, waiting for in-flight scrapes
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
