package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the monitoring loop. They
// hang off an injected registerer so tests can use isolated registries.
type Metrics struct {
	CyclesTotal      prometheus.Counter
	CycleDuration    prometheus.Histogram
	PositionsChecked prometheus.Counter
	AlertsSent       *prometheus.CounterVec
	AlertsSuppressed prometheus.Counter
	CascadeAlerts    *prometheus.CounterVec
	RPCErrors        *prometheus.CounterVec
	SnapshotErrors   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "liqalert",
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Total number of completed monitoring cycles",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "liqalert",
			Subsystem: "monitor",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of a monitoring cycle",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		PositionsChecked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "liqalert",
			Subsystem: "monitor",
			Name:      "positions_checked_total",
			Help:      "Total number of positions fetched and assessed",
		}),
		AlertsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liqalert",
			Subsystem: "alerts",
			Name:      "sent_total",
			Help:      "Alerts delivered, by dispatch reason",
		}, []string{"reason"}),
		AlertsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "liqalert",
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Alert evaluations that decided not to fire",
		}),
		CascadeAlerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liqalert",
			Subsystem: "cascade",
			Name:      "alerts_total",
			Help:      "Cascade alerts raised, by severity",
		}, []string{"severity"}),
		RPCErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liqalert",
			Subsystem: "rpc",
			Name:      "errors_total",
			Help:      "RPC failures, by chain",
		}, []string{"chain"}),
		SnapshotErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "liqalert",
			Subsystem: "storage",
			Name:      "snapshot_errors_total",
			Help:      "Failed position snapshot writes",
		}),
	}
}
