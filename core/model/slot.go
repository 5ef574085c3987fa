package model

import "fmt"

// SlotStatus is the lifecycle state of a physical charging slot.
type SlotStatus int

const (
	SlotFree SlotStatus = iota
	SlotOccupied
	SlotFaulted
)

func (s SlotStatus) String() string {
	switch s {
	case SlotFree:
		return "FREE"
	case SlotOccupied:
		return "OCCUPIED"
	case SlotFaulted:
		return "FAULTED"
	default:
		return fmt.Sprintf("SlotStatus(%d)", int(s))
	}
}

// Slot represents a physical charging point with a fixed power rating.
// Occupant is set while a session runs on the slot; a FAULTED slot keeps its
// occupant until that session completes.
type Slot struct {
	ID            string
	PowerRatingKW float64
	Status        SlotStatus
	Occupant      string // vehicle id, empty when not occupied
}

// Validate checks that the slot definition is sound.
func (s Slot) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("slot id is required")
	}
	if s.PowerRatingKW <= 0 {
		return fmt.Errorf("slot %s: power rating must be positive", s.ID)
	}
	return nil
}
