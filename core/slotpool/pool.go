package slotpool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/voltgrid/stationd/core/model"
)

// ErrUnknownSlot is returned when an operation references a slot id that is
// not part of the pool.
var ErrUnknownSlot = errors.New("unknown slot")

// ErrSlotAlreadyOccupied is returned when reserving a slot that is not FREE.
var ErrSlotAlreadyOccupied = errors.New("slot already occupied")

// ErrSlotNotOccupied is returned when releasing a slot that is not OCCUPIED.
var ErrSlotNotOccupied = errors.New("slot not occupied")

// Pool tracks the state of the physical charging slots of one station.
// Reserve and Release are atomic with respect to concurrent callers: no two
// Reserve calls can succeed for the same slot.
type Pool struct {
	mu    sync.Mutex
	slots map[string]*model.Slot
	order []string // stable listing order: power rating ascending, id as tie-break
}

// New creates a Pool from the slot definitions. All slots start FREE.
func New(defs []model.Slot) (*Pool, error) {
	p := &Pool{slots: make(map[string]*model.Slot, len(defs))}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, ok := p.slots[d.ID]; ok {
			return nil, fmt.Errorf("duplicate slot id %s", d.ID)
		}
		s := d
		s.Status = model.SlotFree
		s.Occupant = ""
		p.slots[s.ID] = &s
		p.order = append(p.order, s.ID)
	}
	sort.Slice(p.order, func(i, j int) bool {
		a, b := p.slots[p.order[i]], p.slots[p.order[j]]
		if a.PowerRatingKW != b.PowerRatingKW {
			return a.PowerRatingKW < b.PowerRatingKW
		}
		return a.ID < b.ID
	})
	return p, nil
}

// ListFree returns the FREE slots ordered by power rating ascending. Faulted
// slots are excluded until explicitly cleared.
func (p *Pool) ListFree() []model.Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Slot
	for _, id := range p.order {
		if s := p.slots[id]; s.Status == model.SlotFree {
			out = append(out, *s)
		}
	}
	return out
}

// Reserve binds the slot to the vehicle. The slot must be FREE.
func (p *Pool) Reserve(slotID, vehicleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[slotID]
	if !ok {
		return fmt.Errorf("reserve %s: %w", slotID, ErrUnknownSlot)
	}
	if s.Status != model.SlotFree {
		return fmt.Errorf("reserve %s for %s: %w", slotID, vehicleID, ErrSlotAlreadyOccupied)
	}
	s.Status = model.SlotOccupied
	s.Occupant = vehicleID
	return nil
}

// Release frees an OCCUPIED slot and returns the vehicle id that held it.
func (p *Pool) Release(slotID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[slotID]
	if !ok {
		return "", fmt.Errorf("release %s: %w", slotID, ErrUnknownSlot)
	}
	switch {
	case s.Status == model.SlotOccupied:
		occupant := s.Occupant
		s.Status = model.SlotFree
		s.Occupant = ""
		return occupant, nil
	case s.Status == model.SlotFaulted && s.Occupant != "":
		// The session ends but the slot stays withdrawn until the fault
		// is cleared.
		occupant := s.Occupant
		s.Occupant = ""
		return occupant, nil
	default:
		return "", fmt.Errorf("release %s: %w", slotID, ErrSlotNotOccupied)
	}
}

// MarkFaulted withdraws the slot from allocation. An occupied slot keeps its
// occupant recorded so the session can still be completed; the slot simply
// never returns to FREE until the fault is cleared.
func (p *Pool) MarkFaulted(slotID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[slotID]
	if !ok {
		return fmt.Errorf("mark faulted %s: %w", slotID, ErrUnknownSlot)
	}
	s.Status = model.SlotFaulted
	return nil
}

// ClearFault returns a FAULTED slot to service. A slot that still has an
// occupant resumes as OCCUPIED, otherwise it becomes FREE. Clearing a slot
// that is not faulted is a no-op.
func (p *Pool) ClearFault(slotID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[slotID]
	if !ok {
		return fmt.Errorf("clear fault %s: %w", slotID, ErrUnknownSlot)
	}
	if s.Status == model.SlotFaulted {
		if s.Occupant != "" {
			s.Status = model.SlotOccupied
		} else {
			s.Status = model.SlotFree
		}
	}
	return nil
}

// Get returns a copy of the slot.
func (p *Pool) Get(slotID string) (model.Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[slotID]
	if !ok {
		return model.Slot{}, fmt.Errorf("get %s: %w", slotID, ErrUnknownSlot)
	}
	return *s, nil
}

// Snapshot returns copies of all slots in listing order.
func (p *Pool) Snapshot() []model.Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Slot, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.slots[id])
	}
	return out
}

// Size returns the number of slots in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
