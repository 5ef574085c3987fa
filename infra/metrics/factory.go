package metrics

import (
	coremetrics "github.com/voltgrid/stationd/core/metrics"
)

// NewFromConfig assembles the configured sinks into a single SessionSink.
// With nothing enabled it returns a NopSink.
func NewFromConfig(cfg coremetrics.Config) (coremetrics.SessionSink, error) {
	var sinks []coremetrics.SessionSink
	if cfg.PrometheusEnabled {
		s, err := NewPromSink()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, NewInfluxSinkWithFallback(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}
