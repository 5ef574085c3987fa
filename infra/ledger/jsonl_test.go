package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voltgrid/stationd/core/billing"
	"github.com/voltgrid/stationd/core/model"
)

func TestJSONLStoreAppendAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	store, err := NewJSONLStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()

	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	recs := []model.BillingRecord{
		{InvoiceID: "i1", VehicleID: "v1", Class: model.ClassStandard, DurationSeconds: 3600, EnergyKWh: 20, AmountDue: 6, FinalizedAt: base},
		{InvoiceID: "i2", VehicleID: "v2", Class: model.ClassEmergency, DurationSeconds: 600, EnergyKWh: 5, AmountDue: 1.25, FinalizedAt: base.Add(time.Hour)},
		{InvoiceID: "i3", VehicleID: "v1", Class: model.ClassStandard, DurationSeconds: 1800, EnergyKWh: 10, AmountDue: 3, FinalizedAt: base.Add(2 * time.Hour)},
	}
	ctx := context.Background()
	for _, r := range recs {
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("append %s: %v", r.InvoiceID, err)
		}
	}

	all, err := store.Query(ctx, billing.LedgerQuery{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if all[0].Class != model.ClassStandard || all[0].AmountDue != 6 {
		t.Fatalf("record roundtrip mismatch: %+v", all[0])
	}

	byVehicle, err := store.Query(ctx, billing.LedgerQuery{VehicleID: "v1"})
	if err != nil {
		t.Fatalf("query by vehicle: %v", err)
	}
	if len(byVehicle) != 2 {
		t.Fatalf("expected 2 records for v1, got %d", len(byVehicle))
	}

	windowed, err := store.Query(ctx, billing.LedgerQuery{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)})
	if err != nil {
		t.Fatalf("query by window: %v", err)
	}
	if len(windowed) != 1 || windowed[0].InvoiceID != "i2" {
		t.Fatalf("window query mismatch: %+v", windowed)
	}
}

func TestJSONLStoreSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	store, err := NewJSONLStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if err := store.Append(ctx, model.BillingRecord{InvoiceID: "i1", VehicleID: "v1", Class: model.ClassStandard}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Simulate a torn write.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{\"invoice_id\": \"i2\", \"cl"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()

	all, err := store.Query(ctx, billing.LedgerQuery{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 1 || all[0].InvoiceID != "i1" {
		t.Fatalf("corrupt line not skipped: %+v", all)
	}
}

var _ billing.Ledger = (*JSONLStore)(nil)
