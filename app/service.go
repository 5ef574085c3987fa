// Package app assembles the station from its configuration.
package app

import (
	"context"
	"fmt"

	"github.com/voltgrid/stationd/config"
	"github.com/voltgrid/stationd/core/allocation"
	"github.com/voltgrid/stationd/core/billing"
	"github.com/voltgrid/stationd/core/kpi"
	"github.com/voltgrid/stationd/core/queue"
	"github.com/voltgrid/stationd/core/reservation"
	"github.com/voltgrid/stationd/core/slotpool"
	infraledger "github.com/voltgrid/stationd/infra/ledger"
	"github.com/voltgrid/stationd/infra/logger"
	"github.com/voltgrid/stationd/infra/metrics"
	"github.com/voltgrid/stationd/infra/notify"
	"github.com/voltgrid/stationd/internal/eventbus"
)

// Service owns the allocation engine and its collaborators.
type Service struct {
	Engine       *allocation.Engine
	Reservations *reservation.Service
	KPI          *kpi.Tracker
	Ledger       billing.Ledger

	bus         *eventbus.Bus
	notifier    *notify.Forwarder
	log         logger.Logger
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	pool, err := slotpool.New(cfg.Slots())
	if err != nil {
		return nil, fmt.Errorf("slot pool: %w", err)
	}
	calc, err := billing.NewCalculator(cfg.RateCard())
	if err != nil {
		return nil, fmt.Errorf("rate card: %w", err)
	}

	bus := eventbus.New()
	engine, err := allocation.New(queue.New(), pool, calc, bus, cfg.AllocationConfig(), logger.New("allocation"))
	if err != nil {
		return nil, fmt.Errorf("allocation engine: %w", err)
	}

	var ldg billing.Ledger
	switch cfg.Ledger.Type {
	case "jsonl":
		ldg, err = infraledger.NewJSONLStore(cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("jsonl ledger: %w", err)
		}
	default:
		ldg = billing.NewMemoryLedger()
	}
	engine.SetLedger(ldg)

	resv := reservation.NewService()
	engine.SetReservations(resv)

	tracker := kpi.NewTracker(len(cfg.Station.Slots))
	sink, err := metrics.NewFromConfig(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	engine.SetSink(metrics.NewMultiSink(tracker, sink))

	svc := &Service{
		Engine:       engine,
		Reservations: resv,
		KPI:          tracker,
		Ledger:       ldg,
		bus:          bus,
		log:          logg,
		promEnabled:  cfg.Metrics.PrometheusEnabled,
		promPort:     cfg.Metrics.PrometheusPort,
	}

	if cfg.Notifier.Enabled {
		forwarder, err := notify.NewForwarder(cfg.Notifier)
		if err != nil {
			return nil, fmt.Errorf("mqtt notifier: %w", err)
		}
		bus.Subscribe(forwarder)
		svc.notifier = forwarder
	}

	return svc, nil
}

// Bus exposes the event bus for additional observers.
func (s *Service) Bus() *eventbus.Bus { return s.bus }

// Run starts the station and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	s.Engine.Start()
	<-ctx.Done()
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.notifier != nil {
		s.notifier.Disconnect()
	}
	s.bus.Close()
	return s.Ledger.Close()
}
