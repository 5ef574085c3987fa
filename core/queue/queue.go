package queue

import (
	"container/heap"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/voltgrid/stationd/core/model"
)

// ErrDuplicateEnqueue is returned when a vehicle id is already queued.
var ErrDuplicateEnqueue = errors.New("vehicle already enqueued")

// ErrCancellationNotFound is returned when removing an unknown vehicle id.
var ErrCancellationNotFound = errors.New("vehicle not found in queue")

// UrgencyTierWidth is the size of one battery urgency bucket in battery
// points. Battery levels are compared by tier rather than by raw value so
// that small battery differences do not reorder vehicles of the same class.
const UrgencyTierWidth = 25.0

// UrgencyTier maps a battery level in [0,100] to its urgency bucket. Lower
// tiers are served first.
func UrgencyTier(batteryLevel float64) int {
	if batteryLevel < 0 {
		batteryLevel = 0
	}
	tier := int(batteryLevel / UrgencyTierWidth)
	if tier > 3 {
		tier = 3
	}
	return tier
}

// Ticket identifies a queued request. Seq is the admission sequence number
// used as the final tie-break; it stays with the request for its whole queue
// lifetime so a rolled-back dequeue can be restored at its original position.
type Ticket struct {
	ID        string
	VehicleID string
	Seq       uint64
}

type entry struct {
	vehicle model.Vehicle
	tier    int
	seq     uint64
	index   int
}

// less implements the strict total order of the queue: class rank, then
// battery urgency tier, then admission order. Seq is unique, so two distinct
// entries never compare equal.
func less(a, b *entry) bool {
	if a.vehicle.Class != b.vehicle.Class {
		return a.vehicle.Class < b.vehicle.Class
	}
	if a.tier != b.tier {
		return a.tier < b.tier
	}
	return a.seq < b.seq
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x interface{}) { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// PriorityQueue orders waiting vehicles by class rank, battery urgency tier
// and admission order. Enqueue and DequeueHighest are O(log n); Remove is
// O(log n) given the id index and never changes the relative order of the
// remaining entries.
type PriorityQueue struct {
	mu      sync.Mutex
	entries entryHeap
	byID    map[string]*entry
	nextSeq uint64
}

// New creates an empty PriorityQueue.
func New() *PriorityQueue {
	return &PriorityQueue{byID: make(map[string]*entry)}
}

// Enqueue admits a vehicle and returns its ticket. The vehicle id must not
// already be queued.
func (q *PriorityQueue) Enqueue(v model.Vehicle) (Ticket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[v.ID]; ok {
		return Ticket{}, ErrDuplicateEnqueue
	}
	e := &entry{vehicle: v, tier: UrgencyTier(v.BatteryLevel), seq: q.nextSeq}
	q.nextSeq++
	heap.Push(&q.entries, e)
	q.byID[v.ID] = e
	return Ticket{ID: uuid.NewString(), VehicleID: v.ID, Seq: e.seq}, nil
}

// Restore re-inserts a vehicle under its original ticket, preserving the
// admission sequence number. Used to roll back a dequeue when slot binding
// fails partway.
func (q *PriorityQueue) Restore(v model.Vehicle, tk Ticket) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[v.ID]; ok {
		return ErrDuplicateEnqueue
	}
	e := &entry{vehicle: v, tier: UrgencyTier(v.BatteryLevel), seq: tk.Seq}
	heap.Push(&q.entries, e)
	q.byID[v.ID] = e
	return nil
}

// DequeueHighest removes and returns the highest-priority vehicle together
// with its ticket. ok is false when the queue is empty.
func (q *PriorityQueue) DequeueHighest() (model.Vehicle, Ticket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return model.Vehicle{}, Ticket{}, false
	}
	e := heap.Pop(&q.entries).(*entry)
	delete(q.byID, e.vehicle.ID)
	return e.vehicle, Ticket{VehicleID: e.vehicle.ID, Seq: e.seq}, true
}

// Peek returns the highest-priority vehicle without removing it.
func (q *PriorityQueue) Peek() (model.Vehicle, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return model.Vehicle{}, false
	}
	return q.entries[0].vehicle, true
}

// Remove withdraws a queued vehicle by id. The returned ticket lets the
// caller restore the entry at its original position.
func (q *PriorityQueue) Remove(vehicleID string) (model.Vehicle, Ticket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byID[vehicleID]
	if !ok {
		return model.Vehicle{}, Ticket{}, ErrCancellationNotFound
	}
	heap.Remove(&q.entries, e.index)
	delete(q.byID, vehicleID)
	return e.vehicle, Ticket{VehicleID: vehicleID, Seq: e.seq}, nil
}

// UpdateBattery refreshes the battery level of a queued vehicle and reorders
// the entry if its urgency tier changed.
func (q *PriorityQueue) UpdateBattery(vehicleID string, level float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byID[vehicleID]
	if !ok {
		return ErrCancellationNotFound
	}
	e.vehicle.BatteryLevel = level
	if tier := UrgencyTier(level); tier != e.tier {
		e.tier = tier
		heap.Fix(&q.entries, e.index)
	}
	return nil
}

// Contains reports whether the vehicle id is currently queued.
func (q *PriorityQueue) Contains(vehicleID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byID[vehicleID]
	return ok
}

// Size returns the number of queued vehicles.
func (q *PriorityQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns the queued vehicles in dequeue order. The queue itself is
// not modified.
func (q *PriorityQueue) Snapshot() []model.Vehicle {
	q.mu.Lock()
	defer q.mu.Unlock()
	tmp := make(entryHeap, len(q.entries))
	for i, e := range q.entries {
		c := *e
		tmp[i] = &c
		tmp[i].index = i
	}
	out := make([]model.Vehicle, 0, len(tmp))
	for tmp.Len() > 0 {
		out = append(out, heap.Pop(&tmp).(*entry).vehicle)
	}
	return out
}
