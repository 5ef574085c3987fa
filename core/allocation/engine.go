package allocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/stationd/core/billing"
	"github.com/voltgrid/stationd/core/events"
	"github.com/voltgrid/stationd/core/logger"
	coremetrics "github.com/voltgrid/stationd/core/metrics"
	"github.com/voltgrid/stationd/core/model"
	"github.com/voltgrid/stationd/core/queue"
	"github.com/voltgrid/stationd/core/reservation"
	"github.com/voltgrid/stationd/core/slotpool"
	"github.com/voltgrid/stationd/internal/eventbus"
)

// ErrInvalidStateTransition indicates caller or collaborator misuse, such as
// a completion report for a slot that is not charging. It is logged and
// ignored; engine state is never corrupted by it.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// ErrIncompatibleVehicleSlot is returned when a slot's power rating does not
// meet the vehicle's minimum requirement.
var ErrIncompatibleVehicleSlot = errors.New("slot incompatible with vehicle")

// ErrCorruptSlotState signals a genuine internal invariant violation, e.g. a
// slot marked OCCUPIED with no session record. The slot is quarantined and
// excluded from further allocation; this is distinct from the recoverable
// error kinds.
var ErrCorruptSlotState = errors.New("corrupt slot state")

// effects accumulates everything a mutation wants to do outside the critical
// section: bus events in publish order, sink records, a ledger append.
type effects struct {
	events []eventbus.Event
	allocs []coremetrics.AllocationRecord
	ended  []coremetrics.SessionRecord
	bill   *model.BillingRecord
}

// Engine matches waiting vehicles to free slots. It holds exclusive mutable
// ownership of the PriorityQueue and the SlotPool; all mutations run under a
// single lock per station.
type Engine struct {
	mu sync.Mutex

	queue *queue.PriorityQueue
	pool  *slotpool.Pool
	bus   *eventbus.Bus
	calc  *billing.Calculator
	cfg   Config

	ledger billing.Ledger
	resv   *reservation.Service
	sink   coremetrics.SessionSink
	log    logger.Logger
	now    func() time.Time

	sessions    map[string]model.ChargingSession // keyed by slot id
	slotByVeh   map[string]string
	quarantined map[string]bool
}

// New creates an Engine. queue, pool, calc and bus are required; ledger and
// sink may be nil.
func New(q *queue.PriorityQueue, pool *slotpool.Pool, calc *billing.Calculator, bus *eventbus.Bus, cfg Config, log logger.Logger) (*Engine, error) {
	if q == nil || pool == nil || calc == nil || bus == nil || log == nil {
		return nil, fmt.Errorf("allocation: nil parameter provided to New")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		queue:       q,
		pool:        pool,
		bus:         bus,
		calc:        calc,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
		sessions:    make(map[string]model.ChargingSession),
		slotByVeh:   make(map[string]string),
		quarantined: make(map[string]bool),
	}, nil
}

// SetLedger configures the collaborator that receives finalized billing
// records.
func (e *Engine) SetLedger(l billing.Ledger) {
	e.mu.Lock()
	e.ledger = l
	e.mu.Unlock()
}

// SetReservations configures the reservation service consulted at admission.
func (e *Engine) SetReservations(s *reservation.Service) {
	e.mu.Lock()
	e.resv = s
	e.mu.Unlock()
}

// SetSink configures the metrics sink for allocation and session records.
func (e *Engine) SetSink(s coremetrics.SessionSink) {
	e.mu.Lock()
	e.sink = s
	e.mu.Unlock()
}

// Start announces the free slots and runs the initial allocation pass.
func (e *Engine) Start() {
	e.mu.Lock()
	var fx effects
	for _, s := range e.pool.ListFree() {
		fx.events = append(fx.events, events.SlotAvailableEvent{SlotID: s.ID})
	}
	e.allocateLocked(&fx)
	e.mu.Unlock()
	e.apply(fx)
}

// SubmitRequest admits a vehicle to the waiting queue and immediately runs an
// allocation pass. If the vehicle holds an active reservation it is admitted
// as class RESERVED with the reservation attached.
func (e *Engine) SubmitRequest(v model.Vehicle) (queue.Ticket, error) {
	if err := v.Validate(); err != nil {
		return queue.Ticket{}, err
	}
	e.mu.Lock()
	if slotID, ok := e.slotByVeh[v.ID]; ok {
		e.mu.Unlock()
		return queue.Ticket{}, fmt.Errorf("vehicle %s already charging on slot %s: %w", v.ID, slotID, queue.ErrDuplicateEnqueue)
	}
	if v.ArrivedAt.IsZero() {
		v.ArrivedAt = e.now()
	}
	if e.resv != nil && v.ReservationID == "" {
		if r, ok := e.resv.ActiveFor(v.ID); ok {
			v.Class = model.ClassReserved
			v.ReservationID = r.ID
		}
	}
	tk, err := e.queue.Enqueue(v)
	if err != nil {
		e.mu.Unlock()
		return queue.Ticket{}, err
	}
	queueDepth.Set(float64(e.queue.Size()))
	e.log.Debugw("request admitted", map[string]any{
		"vehicle": v.ID, "class": v.Class.String(), "battery": v.BatteryLevel,
	})
	var fx effects
	e.allocateLocked(&fx)
	e.mu.Unlock()
	e.apply(fx)
	return tk, nil
}

// CancelRequest withdraws a waiting vehicle. A vehicle mid-charging cannot be
// cancelled through this path.
func (e *Engine) CancelRequest(vehicleID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if slotID, ok := e.slotByVeh[vehicleID]; ok {
		return fmt.Errorf("vehicle %s charging on slot %s cannot be cancelled: %w", vehicleID, slotID, ErrInvalidStateTransition)
	}
	if _, _, err := e.queue.Remove(vehicleID); err != nil {
		return err
	}
	queueDepth.Set(float64(e.queue.Size()))
	e.log.Infof("request for %s cancelled", vehicleID)
	return nil
}

// RefreshBattery updates the battery level of a waiting vehicle and re-runs
// the allocation pass, since the refresh may reorder the queue head.
func (e *Engine) RefreshBattery(vehicleID string, level float64) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("battery level %.1f out of range [0,100]", level)
	}
	e.mu.Lock()
	if err := e.queue.UpdateBattery(vehicleID, level); err != nil {
		e.mu.Unlock()
		return err
	}
	var fx effects
	e.allocateLocked(&fx)
	e.mu.Unlock()
	e.apply(fx)
	return nil
}

// Assign binds a specific waiting vehicle to a specific free slot, bypassing
// the queue order. The compatibility rule still applies.
func (e *Engine) Assign(vehicleID, slotID string) error {
	e.mu.Lock()
	slot, err := e.pool.Get(slotID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	v, tk, err := e.queue.Remove(vehicleID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if slot.PowerRatingKW < e.cfg.requiredKW(v.Class) {
		// Leave the vehicle queued at its original position.
		if rerr := e.queue.Restore(v, tk); rerr != nil {
			e.log.Errorf("restore after incompatible assign: %v", rerr)
		}
		e.mu.Unlock()
		return fmt.Errorf("slot %s (%.0f kW) below %s requirement: %w", slotID, slot.PowerRatingKW, v.Class, ErrIncompatibleVehicleSlot)
	}
	var fx effects
	bindErr := e.bindLocked(&fx, v, tk, slot)
	e.mu.Unlock()
	e.apply(fx)
	return bindErr
}

// ReportChargingComplete ends the session on the slot: the bill is finalized,
// the slot is released and the allocation pass re-runs for it. Duplicate or
// mismatched reports are logged and ignored.
func (e *Engine) ReportChargingComplete(vehicleID, slotID string, measuredEnergyKWh float64) (model.BillingRecord, error) {
	if measuredEnergyKWh < 0 {
		return model.BillingRecord{}, fmt.Errorf("measured energy must not be negative")
	}
	e.mu.Lock()
	fx := effects{}
	rec, err := e.completeLocked(&fx, vehicleID, slotID, measuredEnergyKWh)
	e.mu.Unlock()
	e.apply(fx)
	return rec, err
}

// ReportFault withdraws the slot from allocation until the fault is cleared.
// An active session on the slot survives and is billed on completion.
func (e *Engine) ReportFault(slotID string) error {
	e.mu.Lock()
	if err := e.pool.MarkFaulted(slotID); err != nil {
		e.mu.Unlock()
		return err
	}
	e.log.Warnf("slot %s reported faulted", slotID)
	e.mu.Unlock()
	e.apply(effects{events: []eventbus.Event{events.SlotFaultedEvent{SlotID: slotID}}})
	return nil
}

// ClearFault returns a faulted slot to service and re-runs the allocation
// pass if it became free.
func (e *Engine) ClearFault(slotID string) error {
	e.mu.Lock()
	if e.quarantined[slotID] {
		e.mu.Unlock()
		return fmt.Errorf("slot %s is quarantined: %w", slotID, ErrCorruptSlotState)
	}
	if err := e.pool.ClearFault(slotID); err != nil {
		e.mu.Unlock()
		return err
	}
	var fx effects
	if s, err := e.pool.Get(slotID); err == nil && s.Status == model.SlotFree {
		fx.events = append(fx.events, events.SlotAvailableEvent{SlotID: slotID})
		e.allocateLocked(&fx)
	}
	e.mu.Unlock()
	e.apply(fx)
	return nil
}

// Reconfigure atomically replaces the rate card and the compatibility table.
// In-flight sessions keep their binding and are billed with the table in
// effect at finalization time.
func (e *Engine) Reconfigure(rates billing.RateCard, cfg Config) error {
	calc, err := billing.NewCalculator(rates)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.calc = calc
	e.cfg = cfg
	var fx effects
	// A relaxed compatibility rule may unblock the queue head.
	e.allocateLocked(&fx)
	e.mu.Unlock()
	e.apply(fx)
	return nil
}

// Sessions returns copies of the active charging sessions.
func (e *Engine) Sessions() []model.ChargingSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.ChargingSession, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	return out
}

// QueueDepth returns the number of waiting vehicles.
func (e *Engine) QueueDepth() int { return e.queue.Size() }

// allocateLocked repeatedly binds the queue head to the best compatible free
// slot. If the head is unmatchable it blocks the queue: lower-priority
// vehicles are never served ahead of it. Bounded by queue size.
func (e *Engine) allocateLocked(fx *effects) {
	for {
		head, ok := e.queue.Peek()
		if !ok {
			return
		}
		slot, ok := e.bestFit(head.Class)
		if !ok {
			return
		}
		v, tk, ok := e.queue.DequeueHighest()
		if !ok || v.ID != head.ID {
			// Cannot happen under the engine lock.
			e.log.Errorf("queue head changed during allocation: %v", head.ID)
			return
		}
		if err := e.bindLocked(fx, v, tk, slot); err != nil {
			return
		}
	}
}

// bestFit selects the free slot whose power rating is the closest-above
// match to the class requirement, keeping high-power slots free for future
// emergency arrivals. ListFree is ordered by rating ascending, so the first
// compatible slot wins.
func (e *Engine) bestFit(class model.VehicleClass) (model.Slot, bool) {
	required := e.cfg.requiredKW(class)
	for _, s := range e.pool.ListFree() {
		if e.quarantined[s.ID] {
			continue
		}
		if s.PowerRatingKW >= required {
			return s, true
		}
	}
	return model.Slot{}, false
}

// bindLocked reserves the slot for the vehicle and starts the session.
// Dequeue and reserve form one atomic step: if the reserve fails, the vehicle
// is restored to its original queue position rather than lost.
func (e *Engine) bindLocked(fx *effects, v model.Vehicle, tk queue.Ticket, slot model.Slot) error {
	if err := e.pool.Reserve(slot.ID, v.ID); err != nil {
		if rerr := e.queue.Restore(v, tk); rerr != nil {
			e.log.Errorf("rollback re-enqueue of %s failed: %v", v.ID, rerr)
		}
		e.log.Warnf("reserve %s for %s failed, request restored: %v", slot.ID, v.ID, err)
		return err
	}
	started := e.now()
	sess := model.ChargingSession{
		ID:            uuid.NewString(),
		VehicleID:     v.ID,
		SlotID:        slot.ID,
		Class:         v.Class,
		ReservationID: v.ReservationID,
		StartedAt:     started,
	}
	e.sessions[slot.ID] = sess
	e.slotByVeh[v.ID] = slot.ID
	if e.resv != nil && v.ReservationID != "" {
		if err := e.resv.Fulfill(v.ReservationID); err != nil {
			e.log.Warnf("fulfill reservation %s: %v", v.ReservationID, err)
		}
	}

	wait := started.Sub(v.ArrivedAt).Seconds()
	if wait < 0 {
		wait = 0
	}
	allocationsTotal.WithLabelValues(v.Class.String()).Inc()
	waitSeconds.WithLabelValues(v.Class.String()).Observe(wait)
	queueDepth.Set(float64(e.queue.Size()))
	activeSessions.Set(float64(len(e.sessions)))
	e.log.Infof("vehicle %s bound to slot %s (%.0f kW)", v.ID, slot.ID, slot.PowerRatingKW)

	fx.events = append(fx.events, events.ChargingStartedEvent{
		VehicleID: v.ID,
		SlotID:    slot.ID,
		Class:     v.Class,
		StartTime: started,
	})
	fx.allocs = append(fx.allocs, coremetrics.AllocationRecord{
		VehicleID:   v.ID,
		SlotID:      slot.ID,
		Class:       v.Class,
		WaitSeconds: wait,
		BoundAt:     started,
	})
	return nil
}

// completeLocked runs the CHARGING -> COMPLETING -> FREE transition.
func (e *Engine) completeLocked(fx *effects, vehicleID, slotID string, energyKWh float64) (model.BillingRecord, error) {
	sess, ok := e.sessions[slotID]
	if !ok {
		if slot, err := e.pool.Get(slotID); err == nil && slot.Status == model.SlotOccupied {
			// Occupied with no session record: invariant violation, not
			// caller misuse. Quarantine the slot.
			e.quarantined[slotID] = true
			if ferr := e.pool.MarkFaulted(slotID); ferr != nil {
				e.log.Errorf("quarantine %s: %v", slotID, ferr)
			}
			e.log.Errorf("slot %s occupied with no session record, quarantined", slotID)
			return model.BillingRecord{}, fmt.Errorf("slot %s occupied with no session: %w", slotID, ErrCorruptSlotState)
		}
		e.log.Warnf("completion for idle slot %s ignored", slotID)
		return model.BillingRecord{}, fmt.Errorf("no session on slot %s: %w", slotID, ErrInvalidStateTransition)
	}
	if sess.VehicleID != vehicleID {
		e.log.Warnf("completion for %s on slot %s ignored: slot charges %s", vehicleID, slotID, sess.VehicleID)
		return model.BillingRecord{}, fmt.Errorf("slot %s charges %s, not %s: %w", slotID, sess.VehicleID, vehicleID, ErrInvalidStateTransition)
	}

	completed := e.now()
	duration := completed.Sub(sess.StartedAt).Seconds()
	if duration < 0 {
		duration = 0
	}
	rec := e.calc.Finalize(vehicleID, sess.Class, duration, energyKWh, sess.ReservationID != "")

	fx.events = append(fx.events, events.ChargingCompleteEvent{
		VehicleID:       vehicleID,
		SlotID:          slotID,
		DurationSeconds: duration,
		EnergyKWh:       energyKWh,
	})

	occupant, err := e.pool.Release(slotID)
	if err != nil {
		// The session record says CHARGING but the pool disagrees.
		e.quarantined[slotID] = true
		e.log.Errorf("release %s for %s: %v, quarantined", slotID, vehicleID, err)
		return model.BillingRecord{}, fmt.Errorf("release %s: %w", slotID, ErrCorruptSlotState)
	}
	if occupant != vehicleID {
		e.log.Errorf("slot %s occupant %s does not match session vehicle %s", slotID, occupant, vehicleID)
	}
	delete(e.sessions, slotID)
	delete(e.slotByVeh, vehicleID)

	activeSessions.Set(float64(len(e.sessions)))
	sessionSeconds.Observe(duration)
	billedAmount.WithLabelValues(sess.Class.String()).Add(rec.AmountDue)
	e.log.Infof("vehicle %s completed on slot %s: %.2f kWh, due %.2f", vehicleID, slotID, energyKWh, rec.AmountDue)

	fx.events = append(fx.events, events.BillingFinalizedEvent{
		VehicleID: vehicleID,
		InvoiceID: rec.InvoiceID,
		AmountDue: rec.AmountDue,
	})
	fx.bill = &rec
	fx.ended = append(fx.ended, coremetrics.SessionRecord{
		VehicleID:       vehicleID,
		SlotID:          slotID,
		Class:           sess.Class,
		InvoiceID:       rec.InvoiceID,
		DurationSeconds: duration,
		EnergyKWh:       energyKWh,
		AmountDue:       rec.AmountDue,
		CompletedAt:     completed,
	})

	if slot, gerr := e.pool.Get(slotID); gerr == nil && slot.Status == model.SlotFree {
		fx.events = append(fx.events, events.SlotAvailableEvent{SlotID: slotID})
		e.allocateLocked(fx)
	}
	return rec, nil
}

// apply performs the deferred side effects of a mutation outside the critical
// section: ledger append, sink records, then event publication in order.
func (e *Engine) apply(fx effects) {
	if fx.bill != nil && e.ledger != nil {
		if err := e.ledger.Append(context.Background(), *fx.bill); err != nil {
			e.log.Errorf("ledger append %s: %v", fx.bill.InvoiceID, err)
		}
	}
	if e.sink != nil {
		for _, a := range fx.allocs {
			if err := e.sink.RecordAllocation(a); err != nil {
				e.log.Errorf("allocation metrics: %v", err)
			}
		}
		for _, s := range fx.ended {
			if err := e.sink.RecordSessionEnd(s); err != nil {
				e.log.Errorf("session metrics: %v", err)
			}
		}
	}
	for _, ev := range fx.events {
		for _, err := range e.bus.Publish(ev) {
			observerFailures.Inc()
			e.log.Warnf("observer error on %T: %v", ev, err)
		}
	}
}
