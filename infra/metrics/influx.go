package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/voltgrid/stationd/core/metrics"
	"github.com/voltgrid/stationd/infra/logger"
)

// InfluxSink writes allocation and session records to an InfluxDB instance
// using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.SessionSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordAllocation writes the binding decision as a line protocol point.
func (s *InfluxSink) RecordAllocation(rec coremetrics.AllocationRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("allocation_event").
		AddTag("vehicle_id", rec.VehicleID).
		AddTag("slot_id", rec.SlotID).
		AddTag("class", rec.Class.String()).
		AddTag("component", "allocation_engine").
		AddField("wait_seconds", round3(rec.WaitSeconds)).
		SetTime(rec.BoundAt)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSessionEnd writes the completed session and its bill.
func (s *InfluxSink) RecordSessionEnd(rec coremetrics.SessionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("session_complete").
		AddTag("vehicle_id", rec.VehicleID).
		AddTag("slot_id", rec.SlotID).
		AddTag("class", rec.Class.String()).
		AddTag("invoice_id", rec.InvoiceID).
		AddTag("component", "allocation_engine").
		AddField("duration_seconds", round3(rec.DurationSeconds)).
		AddField("energy_kwh", round3(rec.EnergyKWh)).
		AddField("amount_due", round3(rec.AmountDue)).
		SetTime(rec.CompletedAt)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
