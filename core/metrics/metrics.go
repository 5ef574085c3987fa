package metrics

import (
	"time"

	"github.com/voltgrid/stationd/core/model"
)

// AllocationRecord captures a vehicle-to-slot binding decision.
type AllocationRecord struct {
	VehicleID   string
	SlotID      string
	Class       model.VehicleClass
	WaitSeconds float64
	BoundAt     time.Time
}

// SessionRecord captures a completed charging session and its bill.
type SessionRecord struct {
	VehicleID       string
	SlotID          string
	Class           model.VehicleClass
	InvoiceID       string
	DurationSeconds float64
	EnergyKWh       float64
	AmountDue       float64
	CompletedAt     time.Time
}

// SessionSink records allocation and session outcomes for observability
// purposes.
type SessionSink interface {
	RecordAllocation(rec AllocationRecord) error
	RecordSessionEnd(rec SessionRecord) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordAllocation(AllocationRecord) error { return nil }
func (NopSink) RecordSessionEnd(SessionRecord) error    { return nil }
