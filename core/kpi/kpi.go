// Package kpi aggregates station performance indicators from allocation and
// session records: wait time distribution, slot utilization and revenue.
package kpi

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/voltgrid/stationd/core/metrics"
	"github.com/voltgrid/stationd/core/model"
)

// Report is a point-in-time summary of station performance.
type Report struct {
	GeneratedAt time.Time

	Allocations    int
	Completed      int
	MeanWaitSec    float64
	StdDevWaitSec  float64
	P95WaitSec     float64
	MeanSessionSec float64
	EnergyKWh      float64
	Revenue        float64
	RevenueByClass map[model.VehicleClass]float64

	// UtilizationPct is busy slot-seconds over capacity slot-seconds since
	// the tracker was created.
	UtilizationPct float64
}

// Tracker accumulates records in memory. It implements metrics.SessionSink so
// it can be fanned out next to the exporter sinks.
type Tracker struct {
	mu sync.Mutex

	slotCount int
	since     time.Time
	now       func() time.Time

	waits     []float64
	durations []float64
	energy    float64
	revenue   float64
	byClass   map[model.VehicleClass]float64
	busySec   float64
	allocs    int
}

// NewTracker creates a Tracker for a station with slotCount slots.
func NewTracker(slotCount int) *Tracker {
	t := &Tracker{
		slotCount: slotCount,
		now:       time.Now,
		byClass:   make(map[model.VehicleClass]float64),
	}
	t.since = t.now()
	return t
}

func (t *Tracker) RecordAllocation(rec metrics.AllocationRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allocs++
	t.waits = append(t.waits, rec.WaitSeconds)
	return nil
}

func (t *Tracker) RecordSessionEnd(rec metrics.SessionRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.durations = append(t.durations, rec.DurationSeconds)
	t.busySec += rec.DurationSeconds
	t.energy += rec.EnergyKWh
	t.revenue += rec.AmountDue
	t.byClass[rec.Class] += rec.AmountDue
	return nil
}

// Snapshot computes the current report. Quantiles interpolate empirically;
// with fewer than two samples the spread indicators are zero.
func (t *Tracker) Snapshot() Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := Report{
		GeneratedAt:    t.now(),
		Allocations:    t.allocs,
		Completed:      len(t.durations),
		EnergyKWh:      t.energy,
		Revenue:        t.revenue,
		RevenueByClass: make(map[model.VehicleClass]float64, len(t.byClass)),
	}
	for c, v := range t.byClass {
		r.RevenueByClass[c] = v
	}

	if len(t.waits) > 0 {
		r.MeanWaitSec = stat.Mean(t.waits, nil)
		sorted := append([]float64(nil), t.waits...)
		sort.Float64s(sorted)
		r.P95WaitSec = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}
	if len(t.waits) > 1 {
		r.StdDevWaitSec = stat.StdDev(t.waits, nil)
	}
	if len(t.durations) > 0 {
		r.MeanSessionSec = stat.Mean(t.durations, nil)
	}

	elapsed := r.GeneratedAt.Sub(t.since).Seconds()
	if t.slotCount > 0 && elapsed > 0 {
		r.UtilizationPct = 100 * t.busySec / (elapsed * float64(t.slotCount))
		if r.UtilizationPct > 100 {
			r.UtilizationPct = 100
		}
	}
	return r
}
