package events

import (
	"time"

	"github.com/voltgrid/stationd/core/model"
)

// SlotAvailableEvent is published when a slot transitions to FREE, either at
// startup, after a completed session, or when a fault is cleared.
type SlotAvailableEvent struct {
	SlotID string
}

// ChargingStartedEvent is published when a waiting vehicle is bound to a slot.
type ChargingStartedEvent struct {
	VehicleID string
	SlotID    string
	Class     model.VehicleClass
	StartTime time.Time
}

// ChargingCompleteEvent is published when a charging session finishes.
type ChargingCompleteEvent struct {
	VehicleID       string
	SlotID          string
	DurationSeconds float64
	EnergyKWh       float64
}

// BillingFinalizedEvent is published after the billing record for a completed
// session has been issued.
type BillingFinalizedEvent struct {
	VehicleID string
	InvoiceID string
	AmountDue float64
}

// SlotFaultedEvent is published when a slot is reported faulted and withdrawn
// from allocation.
type SlotFaultedEvent struct {
	SlotID string
}
