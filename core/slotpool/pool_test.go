package slotpool

import (
	"errors"
	"sync"
	"testing"

	"github.com/voltgrid/stationd/core/model"
)

func newPool(t *testing.T) *Pool {
	t.Helper()
	p, err := New([]model.Slot{
		{ID: "s1", PowerRatingKW: 22},
		{ID: "s2", PowerRatingKW: 50},
		{ID: "s3", PowerRatingKW: 150},
	})
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return p
}

func TestListFreeOrderedByPower(t *testing.T) {
	p := newPool(t)
	free := p.ListFree()
	if len(free) != 3 {
		t.Fatalf("expected 3 free slots, got %d", len(free))
	}
	for i, want := range []string{"s1", "s2", "s3"} {
		if free[i].ID != want {
			t.Fatalf("expected %s at %d, got %s", want, i, free[i].ID)
		}
	}
}

func TestReserveRelease(t *testing.T) {
	p := newPool(t)
	if err := p.Reserve("s2", "v1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	s, _ := p.Get("s2")
	if s.Status != model.SlotOccupied || s.Occupant != "v1" {
		t.Fatalf("status and occupant must change together: %+v", s)
	}
	if err := p.Reserve("s2", "v2"); !errors.Is(err, ErrSlotAlreadyOccupied) {
		t.Fatalf("expected ErrSlotAlreadyOccupied, got %v", err)
	}
	occ, err := p.Release("s2")
	if err != nil || occ != "v1" {
		t.Fatalf("release: %v occupant %s", err, occ)
	}
	s, _ = p.Get("s2")
	if s.Status != model.SlotFree || s.Occupant != "" {
		t.Fatalf("slot not freed: %+v", s)
	}
	if _, err := p.Release("s2"); !errors.Is(err, ErrSlotNotOccupied) {
		t.Fatalf("expected ErrSlotNotOccupied, got %v", err)
	}
}

func TestReserveUnknownSlot(t *testing.T) {
	p := newPool(t)
	if err := p.Reserve("nope", "v1"); !errors.Is(err, ErrUnknownSlot) {
		t.Fatalf("expected ErrUnknownSlot, got %v", err)
	}
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	p := newPool(t)
	const racers = 32
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = p.Reserve("s1", "v1")
		}(i)
	}
	wg.Wait()
	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else if !errors.Is(err, ErrSlotAlreadyOccupied) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one successful reserve, got %d", won)
	}
}

func TestFaultedExcludedFromFree(t *testing.T) {
	p := newPool(t)
	if err := p.MarkFaulted("s1"); err != nil {
		t.Fatalf("mark faulted: %v", err)
	}
	for _, s := range p.ListFree() {
		if s.ID == "s1" {
			t.Fatalf("faulted slot listed as free")
		}
	}
	if err := p.Reserve("s1", "v1"); !errors.Is(err, ErrSlotAlreadyOccupied) {
		t.Fatalf("expected faulted slot to refuse reservation, got %v", err)
	}
	if err := p.ClearFault("s1"); err != nil {
		t.Fatalf("clear fault: %v", err)
	}
	if len(p.ListFree()) != 3 {
		t.Fatalf("cleared slot should be free again")
	}
}

func TestFaultDuringSessionKeepsOccupant(t *testing.T) {
	p := newPool(t)
	if err := p.Reserve("s2", "v1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := p.MarkFaulted("s2"); err != nil {
		t.Fatalf("mark faulted: %v", err)
	}
	occ, err := p.Release("s2")
	if err != nil || occ != "v1" {
		t.Fatalf("release on faulted slot: %v occupant %s", err, occ)
	}
	s, _ := p.Get("s2")
	if s.Status != model.SlotFaulted {
		t.Fatalf("slot must stay withdrawn after session end, got %v", s.Status)
	}
}

func TestDuplicateSlotID(t *testing.T) {
	_, err := New([]model.Slot{
		{ID: "s1", PowerRatingKW: 22},
		{ID: "s1", PowerRatingKW: 50},
	})
	if err == nil {
		t.Fatalf("expected duplicate id error")
	}
}
