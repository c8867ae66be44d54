// Package metrics exposes Prometheus instruments for the sync loops.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "syncroom"

// Publish cycle results.
const (
	CyclePublished = "published"
	CycleIdle      = "idle"
	CycleExpired   = "expired"
	CycleSkipped   = "skipped"
	CycleFailed    = "failed"
)

var (
	PublishCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_cycles_total",
		Help:      "Host publish cycles by result.",
	}, []string{"result"})

	PublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "publish_cycle_seconds",
		Help:      "Duration of a host publish cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	ReconcileCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_commands_total",
		Help:      "Corrective commands issued to listener devices.",
	}, []string{"kind"})

	ReconcileErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_errors_total",
		Help:      "Reconciliations that failed.",
	})

	PacketsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_dropped_total",
		Help:      "Packets a follower skipped without reconciling.",
	}, []string{"reason"})

	Drift = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "listener_drift_seconds",
		Help:      "Absolute drift between listener and expected host position.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1, 2, 5, 10, 30},
	})

	ActiveLoops = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_loops",
		Help:      "Running publishers and followers.",
	}, []string{"role"})
)

// ObserveCycle records one publish cycle.
func ObserveCycle(result string, took time.Duration) {
	PublishCycles.WithLabelValues(result).Inc()
	PublishDuration.Observe(took.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
