package reservation

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyReserved is returned when a vehicle already holds an active
// reservation.
var ErrAlreadyReserved = errors.New("vehicle already has an active reservation")

// ErrNotFound is returned for operations on unknown reservation ids.
var ErrNotFound = errors.New("reservation not found")

// GracePeriod is how long past the reserved time a reservation stays valid.
const GracePeriod = 15 * time.Minute

// Reservation represents a charging slot reservation. A vehicle holding an
// active, unexpired reservation is admitted to the queue as class RESERVED.
type Reservation struct {
	ID          string
	VehicleID   string
	ReservedFor time.Time
	Duration    time.Duration
	CreatedAt   time.Time
	Active      bool
	Fulfilled   bool
}

// Expired reports whether the reservation is past its grace period at t.
func (r Reservation) Expired(t time.Time) bool {
	return t.After(r.ReservedFor.Add(GracePeriod))
}

// Service manages charging slot reservations.
type Service struct {
	mu        sync.Mutex
	byID      map[string]*Reservation
	byVehicle map[string]string
	now       func() time.Time
}

// NewService creates an empty reservation Service.
func NewService() *Service {
	return &Service{
		byID:      make(map[string]*Reservation),
		byVehicle: make(map[string]string),
		now:       time.Now,
	}
}

// Create registers a reservation for the vehicle. A vehicle may hold at most
// one active reservation at a time.
func (s *Service) Create(vehicleID string, reservedFor time.Time, duration time.Duration) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byVehicle[vehicleID]; ok {
		if r := s.byID[id]; r != nil && r.Active && !r.Expired(s.now()) {
			return Reservation{}, ErrAlreadyReserved
		}
	}
	r := &Reservation{
		ID:          uuid.NewString(),
		VehicleID:   vehicleID,
		ReservedFor: reservedFor,
		Duration:    duration,
		CreatedAt:   s.now(),
		Active:      true,
	}
	s.byID[r.ID] = r
	s.byVehicle[vehicleID] = r.ID
	return *r, nil
}

// Cancel deactivates a reservation.
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	r.Active = false
	delete(s.byVehicle, r.VehicleID)
	return nil
}

// ActiveFor returns the vehicle's active, unexpired reservation, if any.
func (s *Service) ActiveFor(vehicleID string) (Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byVehicle[vehicleID]
	if !ok {
		return Reservation{}, false
	}
	r := s.byID[id]
	if r == nil || !r.Active || r.Expired(s.now()) {
		return Reservation{}, false
	}
	return *r, true
}

// Fulfill marks a reservation as consumed when the vehicle starts charging.
func (s *Service) Fulfill(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	r.Fulfilled = true
	r.Active = false
	delete(s.byVehicle, r.VehicleID)
	return nil
}

// CleanupExpired deactivates reservations past their grace period and
// returns how many were removed.
func (s *Service) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.byID {
		if r.Active && r.Expired(s.now()) {
			r.Active = false
			delete(s.byVehicle, r.VehicleID)
			n++
		}
	}
	return n
}

// Active returns the active, unexpired reservations sorted by reserved time.
func (s *Service) Active() []Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Reservation
	for _, r := range s.byID {
		if r.Active && !r.Expired(s.now()) {
			res = append(res, *r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ReservedFor.Before(res[j].ReservedFor) })
	return res
}
