package model

import "time"

// ChargingSession binds one vehicle to one slot for the duration of a charge.
// It exists only between CHARGING_STARTED and CHARGING_COMPLETE; on completion
// it is converted into a BillingRecord and discarded.
type ChargingSession struct {
	ID            string
	VehicleID     string
	SlotID        string
	Class         VehicleClass
	ReservationID string
	StartedAt     time.Time
}

// BillingRecord is the immutable outcome of a completed charging session.
// Once finalized it is never mutated; consumers receive copies by value.
type BillingRecord struct {
	InvoiceID       string       `json:"invoice_id"`
	VehicleID       string       `json:"vehicle_id"`
	Class           VehicleClass `json:"class"`
	DurationSeconds float64      `json:"duration_seconds"`
	EnergyKWh       float64      `json:"energy_kwh"`
	AmountDue       float64      `json:"amount_due"`
	FinalizedAt     time.Time    `json:"finalized_at"`
}
