package metrics

import coremetrics "github.com/voltgrid/stationd/core/metrics"

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.SessionSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.SessionSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAllocation forwards the record to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordAllocation(rec coremetrics.AllocationRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordAllocation(rec); err != nil {
			return err
		}
	}
	return nil
}

// RecordSessionEnd forwards the record to all sinks.
func (m *MultiSink) RecordSessionEnd(rec coremetrics.SessionRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordSessionEnd(rec); err != nil {
			return err
		}
	}
	return nil
}
