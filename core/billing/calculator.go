package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/stationd/core/model"
)

// RateCard holds the pricing configuration of the station. It is supplied at
// construction and only replaced wholesale through reconfiguration.
type RateCard struct {
	// RatePerKWh maps each vehicle class to its energy price.
	RatePerKWh map[model.VehicleClass]float64
	// GracePeriodSeconds is the duration during which no idle fee accrues.
	GracePeriodSeconds float64
	// IdleFeeRate is charged per second past the grace period.
	IdleFeeRate float64
	// ConnectionFee is a flat per-session fee.
	ConnectionFee float64
	// ReservationDiscount is the fraction deducted when the session was
	// backed by a reservation, e.g. 0.05 for 5%.
	ReservationDiscount float64
}

// Validate checks the rate card for negative rates, which would break the
// monotonicity of the cost model.
func (r RateCard) Validate() error {
	for class, rate := range r.RatePerKWh {
		if rate < 0 {
			return fmt.Errorf("rate for %s must not be negative", class)
		}
	}
	if r.GracePeriodSeconds < 0 {
		return fmt.Errorf("grace period must not be negative")
	}
	if r.IdleFeeRate < 0 {
		return fmt.Errorf("idle fee rate must not be negative")
	}
	if r.ConnectionFee < 0 {
		return fmt.Errorf("connection fee must not be negative")
	}
	if r.ReservationDiscount < 0 || r.ReservationDiscount >= 1 {
		return fmt.Errorf("reservation discount must be in [0,1)")
	}
	return nil
}

// Calculator produces immutable billing records for completed sessions.
// AmountDue is deterministic and pure given the inputs and the rate card;
// prior records are never revisited.
type Calculator struct {
	rates RateCard
	now   func() time.Time
}

// NewCalculator creates a Calculator for the given rate card.
func NewCalculator(rates RateCard) (*Calculator, error) {
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{rates: rates, now: time.Now}, nil
}

// Rates returns the rate card currently in effect.
func (c *Calculator) Rates() RateCard { return c.rates }

// AmountDue computes the cost of a session without issuing a record.
func (c *Calculator) AmountDue(class model.VehicleClass, durationSeconds, energyKWh float64, reserved bool) float64 {
	amount := energyKWh * c.rates.RatePerKWh[class]
	if idle := durationSeconds - c.rates.GracePeriodSeconds; idle > 0 {
		amount += idle * c.rates.IdleFeeRate
	}
	amount += c.rates.ConnectionFee
	if reserved {
		amount *= 1 - c.rates.ReservationDiscount
	}
	return amount
}

// Finalize issues the billing record for a completed session.
func (c *Calculator) Finalize(vehicleID string, class model.VehicleClass, durationSeconds, energyKWh float64, reserved bool) model.BillingRecord {
	return model.BillingRecord{
		InvoiceID:       uuid.NewString(),
		VehicleID:       vehicleID,
		Class:           class,
		DurationSeconds: durationSeconds,
		EnergyKWh:       energyKWh,
		AmountDue:       c.AmountDue(class, durationSeconds, energyKWh, reserved),
		FinalizedAt:     c.now(),
	}
}
