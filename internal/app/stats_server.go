package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatsProvider yields the flat key-value counters served at /stats.
type StatsProvider interface {
	Stats() map[string]int
}

// StatsServer exposes the observability surface: liveness, flat tracker
// counters, and Prometheus metrics.
type StatsServer struct {
	logger *zap.Logger
	server *http.Server
}

func NewStatsServer(logger *zap.Logger, port int, provider StatsProvider, gatherer prometheus.Gatherer) *StatsServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}).Methods(http.MethodGet)

	router.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(provider.Stats()); err != nil {
			logger.Warn("stats encode failed", zap.Error(err))
		}
	}).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return &StatsServer{
		logger: logger,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until Shutdown. It blocks; run it in a goroutine.
func (s *StatsServer) Start() {
	s.logger.Info("stats server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("stats server failed", zap.Error(err))
	}
}

func (s *StatsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *StatsServer) Handler() http.Handler {
	return s.server.Handler
}
