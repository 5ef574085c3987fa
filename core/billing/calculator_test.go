package billing

import (
	"context"
	"testing"
	"time"

	"github.com/voltgrid/stationd/core/model"
)

func standardRates() RateCard {
	return RateCard{
		RatePerKWh: map[model.VehicleClass]float64{
			model.ClassEmergency:  0.25,
			model.ClassReserved:   0.28,
			model.ClassAutonomous: 0.32,
			model.ClassStandard:   0.3,
		},
		GracePeriodSeconds: 7200,
		IdleFeeRate:        0.001,
	}
}

func TestFinalizeStandardSession(t *testing.T) {
	// 1h at 20 kWh, STANDARD, 0.30/kWh, within grace: 6.00 exactly.
	c, err := NewCalculator(standardRates())
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	rec := c.Finalize("v1", model.ClassStandard, 3600, 20, false)
	if rec.AmountDue != 6.0 {
		t.Fatalf("expected 6.0, got %v", rec.AmountDue)
	}
	if rec.VehicleID != "v1" || rec.DurationSeconds != 3600 || rec.EnergyKWh != 20 {
		t.Fatalf("record fields wrong: %+v", rec)
	}
	if rec.InvoiceID == "" || rec.FinalizedAt.IsZero() {
		t.Fatalf("record not finalized: %+v", rec)
	}
}

func TestIdleFeePastGracePeriod(t *testing.T) {
	rates := standardRates()
	rates.GracePeriodSeconds = 1800
	c, err := NewCalculator(rates)
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	within := c.AmountDue(model.ClassStandard, 1800, 10, false)
	past := c.AmountDue(model.ClassStandard, 2800, 10, false)
	if want := within + 1000*rates.IdleFeeRate; past != want {
		t.Fatalf("idle fee: got %v want %v", past, want)
	}
}

func TestAmountDueMonotonic(t *testing.T) {
	c, err := NewCalculator(standardRates())
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	for _, class := range []model.VehicleClass{
		model.ClassEmergency, model.ClassReserved, model.ClassAutonomous, model.ClassStandard,
	} {
		prev := -1.0
		for dur := 0.0; dur <= 14400; dur += 1200 {
			got := c.AmountDue(class, dur, 15, false)
			if got < prev {
				t.Fatalf("%s: amount decreased with duration: %v -> %v", class, prev, got)
			}
			prev = got
		}
		prev = -1.0
		for energy := 0.0; energy <= 100; energy += 5 {
			got := c.AmountDue(class, 3600, energy, false)
			if got < prev {
				t.Fatalf("%s: amount decreased with energy: %v -> %v", class, prev, got)
			}
			prev = got
		}
	}
}

func TestReservationDiscount(t *testing.T) {
	rates := standardRates()
	rates.ReservationDiscount = 0.05
	c, err := NewCalculator(rates)
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	full := c.AmountDue(model.ClassReserved, 3600, 20, false)
	discounted := c.AmountDue(model.ClassReserved, 3600, 20, true)
	if discounted >= full {
		t.Fatalf("expected discount, got %v >= %v", discounted, full)
	}
}

func TestRateCardValidation(t *testing.T) {
	bad := standardRates()
	bad.RatePerKWh[model.ClassStandard] = -1
	if _, err := NewCalculator(bad); err == nil {
		t.Fatalf("expected validation error for negative rate")
	}
	bad = standardRates()
	bad.ReservationDiscount = 1.5
	if _, err := NewCalculator(bad); err == nil {
		t.Fatalf("expected validation error for discount >= 1")
	}
}

func TestMemoryLedger(t *testing.T) {
	l := NewMemoryLedger()
	now := time.Now()
	recs := []model.BillingRecord{
		{InvoiceID: "i1", VehicleID: "v1", AmountDue: 6, FinalizedAt: now},
		{InvoiceID: "i2", VehicleID: "v2", AmountDue: 4, FinalizedAt: now.Add(time.Minute)},
	}
	for _, r := range recs {
		if err := l.Append(context.Background(), r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := l.Query(context.Background(), LedgerQuery{VehicleID: "v1"})
	if err != nil || len(got) != 1 || got[0].InvoiceID != "i1" {
		t.Fatalf("query by vehicle: %v %+v", err, got)
	}
	if l.TotalRevenue() != 10 {
		t.Fatalf("revenue: %v", l.TotalRevenue())
	}
}
