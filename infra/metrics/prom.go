package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	coremetrics "github.com/voltgrid/stationd/core/metrics"
)

// PromSink records allocation and session outcomes as Prometheus metrics.
type PromSink struct {
	energy   *prometheus.CounterVec
	revenue  *prometheus.CounterVec
	slotUse  *prometheus.CounterVec
	waitHist *prometheus.HistogramVec
}

// NewPromSink registers station metrics on the default Prometheus registerer.
// The Prometheus server should be started separately via StartPromServer.
func NewPromSink() (coremetrics.SessionSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.SessionSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	energy := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "station_energy_delivered_kwh_total",
		Help: "Energy delivered across completed sessions",
	}, []string{"class"})
	revenue := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "station_revenue_total",
		Help: "Revenue from finalized invoices",
	}, []string{"class"})
	slotUse := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "station_slot_sessions_total",
		Help: "Completed sessions per slot",
	}, []string{"slot_id"})
	waitHist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "station_admission_wait_seconds",
		Help:    "Time between admission and slot binding",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"class"})

	if err := reg.Register(energy); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			energy = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(revenue); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			revenue = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(slotUse); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			slotUse = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(waitHist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			waitHist = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{energy: energy, revenue: revenue, slotUse: slotUse, waitHist: waitHist}, nil
}

// RecordAllocation observes the admission-to-binding wait.
func (s *PromSink) RecordAllocation(rec coremetrics.AllocationRecord) error {
	s.waitHist.WithLabelValues(rec.Class.String()).Observe(rec.WaitSeconds)
	return nil
}

// RecordSessionEnd adds the session's energy and revenue to the counters.
func (s *PromSink) RecordSessionEnd(rec coremetrics.SessionRecord) error {
	s.energy.WithLabelValues(rec.Class.String()).Add(rec.EnergyKWh)
	s.revenue.WithLabelValues(rec.Class.String()).Add(rec.AmountDue)
	s.slotUse.WithLabelValues(rec.SlotID).Inc()
	return nil
}
