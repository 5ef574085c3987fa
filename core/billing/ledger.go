package billing

import (
	"context"
	"sync"
	"time"

	"github.com/voltgrid/stationd/core/model"
)

// LedgerQuery defines filters for retrieving billing records.
type LedgerQuery struct {
	VehicleID string
	Start     time.Time
	End       time.Time
}

// Ledger is the external collaborator that receives finalized billing
// records. Implementations persist or forward them; the core only appends.
type Ledger interface {
	Append(ctx context.Context, rec model.BillingRecord) error
	Query(ctx context.Context, q LedgerQuery) ([]model.BillingRecord, error)
	Close() error
}

// MemoryLedger keeps records in memory. Useful for tests and as a default
// when no persistence collaborator is configured.
type MemoryLedger struct {
	mu      sync.RWMutex
	records []model.BillingRecord
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger { return &MemoryLedger{} }

func (l *MemoryLedger) Append(_ context.Context, rec model.BillingRecord) error {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
	return nil
}

func (l *MemoryLedger) Query(_ context.Context, q LedgerQuery) ([]model.BillingRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var res []model.BillingRecord
	for _, r := range l.records {
		if q.VehicleID != "" && r.VehicleID != q.VehicleID {
			continue
		}
		if !q.Start.IsZero() && r.FinalizedAt.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && r.FinalizedAt.After(q.End) {
			continue
		}
		res = append(res, r)
	}
	return res, nil
}

func (l *MemoryLedger) Close() error { return nil }

// TotalRevenue sums the amount due across all records.
func (l *MemoryLedger) TotalRevenue() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0.0
	for _, r := range l.records {
		total += r.AmountDue
	}
	return total
}
