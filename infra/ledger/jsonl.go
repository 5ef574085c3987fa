// Package ledger provides persistent billing ledger implementations.
package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/voltgrid/stationd/core/billing"
	"github.com/voltgrid/stationd/core/model"
)

// JSONLStore appends billing records to a JSONL file, one record per line.
type JSONLStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONLStore(path string) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if cerr := f.Close(); cerr != nil {
		return nil, cerr
	}
	return &JSONLStore{path: path}, nil
}

func (s *JSONLStore) Append(ctx context.Context, rec model.BillingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	return enc.Encode(rec)
}

func (s *JSONLStore) Query(ctx context.Context, q billing.LedgerQuery) ([]model.BillingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var res []model.BillingRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r model.BillingRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
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
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *JSONLStore) Close() error { return nil }
