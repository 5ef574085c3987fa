package reservation

import (
	"errors"
	"testing"
	"time"
)

func TestCreateAndActiveFor(t *testing.T) {
	s := NewService()
	r, err := s.Create("v1", time.Now().Add(time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, ok := s.ActiveFor("v1")
	if !ok || got.ID != r.ID {
		t.Fatalf("expected active reservation, got %v %v", got, ok)
	}
	if _, err := s.Create("v1", time.Now().Add(2*time.Hour), time.Hour); !errors.Is(err, ErrAlreadyReserved) {
		t.Fatalf("expected ErrAlreadyReserved, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	s := NewService()
	r, _ := s.Create("v1", time.Now().Add(time.Hour), time.Hour)
	if err := s.Cancel(r.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, ok := s.ActiveFor("v1"); ok {
		t.Fatalf("cancelled reservation still active")
	}
	if err := s.Cancel("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFulfill(t *testing.T) {
	s := NewService()
	r, _ := s.Create("v1", time.Now(), time.Hour)
	if err := s.Fulfill(r.ID); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if _, ok := s.ActiveFor("v1"); ok {
		t.Fatalf("fulfilled reservation still active")
	}
	// The slot is free for a new reservation afterwards.
	if _, err := s.Create("v1", time.Now().Add(time.Hour), time.Hour); err != nil {
		t.Fatalf("create after fulfill: %v", err)
	}
}

func TestExpiryGracePeriod(t *testing.T) {
	s := NewService()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	r, _ := s.Create("v1", base, time.Hour)
	now = base.Add(GracePeriod - time.Minute)
	if _, ok := s.ActiveFor("v1"); !ok {
		t.Fatalf("reservation expired within grace period")
	}
	now = base.Add(GracePeriod + time.Minute)
	if _, ok := s.ActiveFor("v1"); ok {
		t.Fatalf("reservation still active past grace period")
	}
	if n := s.CleanupExpired(); n != 1 {
		t.Fatalf("expected 1 expired cleanup, got %d", n)
	}
	if err := s.Cancel(r.ID); err != nil {
		t.Fatalf("cancel after cleanup: %v", err)
	}
}

func TestActiveSorted(t *testing.T) {
	s := NewService()
	later := time.Now().Add(3 * time.Hour)
	sooner := time.Now().Add(time.Hour)
	if _, err := s.Create("v1", later, time.Hour); err != nil {
		t.Fatalf("create v1: %v", err)
	}
	if _, err := s.Create("v2", sooner, time.Hour); err != nil {
		t.Fatalf("create v2: %v", err)
	}
	active := s.Active()
	if len(active) != 2 || active[0].VehicleID != "v2" {
		t.Fatalf("expected v2 first, got %+v", active)
	}
}
