package kpi

import (
	"math"
	"testing"
	"time"

	"github.com/voltgrid/stationd/core/metrics"
	"github.com/voltgrid/stationd/core/model"
)

func TestEmptyTrackerSnapshot(t *testing.T) {
	tr := NewTracker(3)
	r := tr.Snapshot()
	if r.Allocations != 0 || r.Completed != 0 || r.Revenue != 0 {
		t.Fatalf("empty tracker reported activity: %+v", r)
	}
	if r.MeanWaitSec != 0 || r.StdDevWaitSec != 0 {
		t.Fatalf("empty tracker reported wait stats: %+v", r)
	}
}

func TestWaitStatistics(t *testing.T) {
	tr := NewTracker(2)
	for _, w := range []float64{10, 20, 30} {
		if err := tr.RecordAllocation(metrics.AllocationRecord{VehicleID: "v", WaitSeconds: w}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	r := tr.Snapshot()
	if r.Allocations != 3 {
		t.Fatalf("allocations = %d, want 3", r.Allocations)
	}
	if math.Abs(r.MeanWaitSec-20) > 1e-9 {
		t.Fatalf("mean wait = %f, want 20", r.MeanWaitSec)
	}
	if math.Abs(r.StdDevWaitSec-10) > 1e-9 {
		t.Fatalf("stddev wait = %f, want 10", r.StdDevWaitSec)
	}
}

func TestRevenueAndEnergyAggregation(t *testing.T) {
	tr := NewTracker(2)
	recs := []metrics.SessionRecord{
		{VehicleID: "a", Class: model.ClassStandard, DurationSeconds: 1800, EnergyKWh: 10, AmountDue: 3},
		{VehicleID: "b", Class: model.ClassStandard, DurationSeconds: 3600, EnergyKWh: 20, AmountDue: 6},
		{VehicleID: "c", Class: model.ClassEmergency, DurationSeconds: 600, EnergyKWh: 5, AmountDue: 1.25},
	}
	for _, rec := range recs {
		if err := tr.RecordSessionEnd(rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	r := tr.Snapshot()
	if r.Completed != 3 {
		t.Fatalf("completed = %d, want 3", r.Completed)
	}
	if math.Abs(r.EnergyKWh-35) > 1e-9 {
		t.Fatalf("energy = %f, want 35", r.EnergyKWh)
	}
	if math.Abs(r.Revenue-10.25) > 1e-9 {
		t.Fatalf("revenue = %f, want 10.25", r.Revenue)
	}
	if math.Abs(r.RevenueByClass[model.ClassStandard]-9) > 1e-9 {
		t.Fatalf("standard revenue = %f, want 9", r.RevenueByClass[model.ClassStandard])
	}
	if math.Abs(r.MeanSessionSec-2000) > 1e-9 {
		t.Fatalf("mean session = %f, want 2000", r.MeanSessionSec)
	}
}

func TestUtilization(t *testing.T) {
	tr := NewTracker(2)
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	now := start
	tr.now = func() time.Time { return now }
	tr.since = start

	if err := tr.RecordSessionEnd(metrics.SessionRecord{VehicleID: "a", DurationSeconds: 3600}); err != nil {
		t.Fatalf("record: %v", err)
	}
	now = start.Add(time.Hour)
	r := tr.Snapshot()
	// One slot-hour busy of two slot-hours capacity.
	if math.Abs(r.UtilizationPct-50) > 1e-9 {
		t.Fatalf("utilization = %f, want 50", r.UtilizationPct)
	}
}
