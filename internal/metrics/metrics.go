package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	bundleRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onu",
			Subsystem: "studio",
			Name:      "bundle_refreshes_total",
			Help:      "Number of runtime bundle downloads by result.",
		}, []string{"result"},
	)
	projections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onu",
			Subsystem: "studio",
			Name:      "projections_total",
			Help:      "Number of source projections by mode, kind (full|reload) and result.",
		}, []string{"mode", "kind", "result"},
	)
	reloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onu",
			Subsystem: "studio",
			Name:      "reloads_total",
			Help:      "Number of hot reload cycles by result.",
		}, []string{"result"},
	)
	reconfigures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onu",
			Subsystem: "studio",
			Name:      "reconfigures_total",
			Help:      "Number of runtime reconfigure invocations by result.",
		}, []string{"result"},
	)
	readySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "onu",
			Subsystem: "studio",
			Name:      "ready_seconds",
			Help:      "Time from launching the studio server to its readiness marker.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)
	childState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "onu",
			Subsystem: "studio",
			Name:      "child_state",
			Help:      "Current state of the studio server (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	childRSS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "onu",
			Subsystem: "studio",
			Name:      "child_memory_rss_bytes",
			Help:      "Resident memory of the studio server process.",
		},
	)
	childCPU = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "onu",
			Subsystem: "studio",
			Name:      "child_cpu_percent",
			Help:      "CPU usage of the studio server process.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{bundleRefreshes, projections, reloads, reconfigures, readySeconds, childState, childRSS, childCPU}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func IncBundleRefresh(err error) {
	if regOK.Load() {
		bundleRefreshes.WithLabelValues(result(err)).Inc()
	}
}

func IncProjection(mode, kind string, err error) {
	if regOK.Load() {
		projections.WithLabelValues(mode, kind, result(err)).Inc()
	}
}

func IncReload(err error) {
	if regOK.Load() {
		reloads.WithLabelValues(result(err)).Inc()
	}
}

func IncReconfigure(err error) {
	if regOK.Load() {
		reconfigures.WithLabelValues(result(err)).Inc()
	}
}

func ObserveReady(seconds float64) {
	if regOK.Load() {
		readySeconds.Observe(seconds)
	}
}

// SetChildState marks state as the only active one among all.
func SetChildState(state string, all ...string) {
	if !regOK.Load() {
		return
	}
	for _, s := range all {
		childState.WithLabelValues(s).Set(0)
	}
	childState.WithLabelValues(state).Set(1)
}

func setChildUsage(rss uint64, cpu float64) {
	if regOK.Load() {
		childRSS.Set(float64(rss))
		childCPU.Set(cpu)
	}
}
