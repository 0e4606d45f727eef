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

	helperStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "helpr",
			Subsystem: "helper",
			Name:      "starts_total",
			Help:      "Number of successful helper launches per template.",
		}, []string{"template"},
	)
	startFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "helpr",
			Subsystem: "helper",
			Name:      "start_failures_total",
			Help:      "Number of failed launches by failure kind (read, parse, spawn).",
		}, []string{"kind"},
	)
	helperStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "helpr",
			Subsystem: "helper",
			Name:      "stops_total",
			Help:      "Number of completed teardowns by mode (graceful, forced, exited).",
		}, []string{"mode"},
	)
	teardownDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "helpr",
			Subsystem: "helper",
			Name:      "teardown_duration_seconds",
			Help:      "Time from stop request to reaped process.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "helpr",
			Subsystem: "helper",
			Name:      "running",
			Help:      "1 while a helper process is tracked, 0 otherwise.",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "helpr",
			Subsystem: "supervisor",
			Name:      "state_transitions_total",
			Help:      "Number of supervisor state transitions.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "helpr",
			Subsystem: "supervisor",
			Name:      "current_state",
			Help:      "Current supervisor state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{helperStarts, startFailures, helperStops, teardownDuration, running, stateTransitions, currentState}
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

// Handler serves the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// The helpers below no-op until Register succeeds.

func IncStart(template string) {
	if regOK.Load() {
		helperStarts.WithLabelValues(template).Inc()
		running.Set(1)
	}
}

func IncStartFailure(kind string) {
	if regOK.Load() {
		startFailures.WithLabelValues(kind).Inc()
	}
}

func IncStop(mode string, seconds float64) {
	if regOK.Load() {
		helperStops.WithLabelValues(mode).Inc()
		teardownDuration.Observe(seconds)
		running.Set(0)
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
		currentState.WithLabelValues(from).Set(0)
		currentState.WithLabelValues(to).Set(1)
	}
}
