package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

type staticStats map[string]int

func (s staticStats) Stats() map[string]int { return s }

func TestStatsServerHealthz(t *testing.T) {
	registry := prometheus.NewRegistry()
	srv := NewStatsServer(nil, 0, staticStats{}, registry)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestStatsServerStats(t *testing.T) {
	registry := prometheus.NewRegistry()
	provider := staticStats{"polling_tracked_pairs": 3, "cycles": 12}
	srv := NewStatsServer(nil, 0, provider, registry)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if got["polling_tracked_pairs"] != 3 || got["cycles"] != 12 {
		t.Errorf("stats = %v", got)
	}
}

func TestStatsServerMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.CyclesTotal.Inc()
	srv := NewStatsServer(nil, 0, staticStats{}, registry)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "liqalert_monitor_cycles_total 1") {
		t.Errorf("cycle counter missing from exposition:\n%s", rec.Body.String())
	}
}

func TestStatsServerMethodNotAllowed(t *testing.T) {
	registry := prometheus.NewRegistry()
	srv := NewStatsServer(nil, 0, staticStats{}, registry)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stats", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
