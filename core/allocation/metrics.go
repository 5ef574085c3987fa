package allocation

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	allocationsTotal *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	activeSessions   prometheus.Gauge
	waitSeconds      *prometheus.HistogramVec
	sessionSeconds   prometheus.Histogram
	billedAmount     *prometheus.CounterVec
	observerFailures prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Gauge, prometheus.Gauge, *prometheus.HistogramVec, prometheus.Histogram, *prometheus.CounterVec, prometheus.Counter) {
	alloc := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "station_allocations_total",
			Help: "Number of vehicle-to-slot bindings",
		},
		[]string{"vehicle_class"},
	)
	depth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "station_queue_depth",
			Help: "Number of vehicles currently waiting",
		},
	)
	sessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "station_active_sessions",
			Help: "Number of charging sessions currently running",
		},
	)
	wait := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "station_wait_seconds",
			Help:    "Time vehicles spend in the queue before binding",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"vehicle_class"},
	)
	dur := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "station_session_seconds",
			Help:    "Duration of completed charging sessions",
			Buckets: prometheus.ExponentialBuckets(60, 2, 10),
		},
	)
	billed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "station_billed_amount_total",
			Help: "Total amount billed per vehicle class",
		},
		[]string{"vehicle_class"},
	)
	obsFail := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "station_observer_failures_total",
			Help: "Number of observer errors collected during event delivery",
		},
	)
	return alloc, depth, sessions, wait, dur, billed, obsFail
}

func init() {
	allocationsTotal, queueDepth, activeSessions, waitSeconds, sessionSeconds, billedAmount, observerFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers allocation metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(allocationsTotal, queueDepth, activeSessions, waitSeconds, sessionSeconds, billedAmount, observerFailures)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	allocationsTotal, queueDepth, activeSessions, waitSeconds, sessionSeconds, billedAmount, observerFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
