package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// VehicleClass identifies the admission class of a vehicle. The ordering of
// the constants is the priority ordering: lower values are served first.
type VehicleClass int

const (
	ClassEmergency VehicleClass = iota
	ClassReserved
	ClassAutonomous
	ClassStandard
)

// String returns the canonical upper-case name of the class.
func (c VehicleClass) String() string {
	switch c {
	case ClassEmergency:
		return "EMERGENCY"
	case ClassReserved:
		return "RESERVED"
	case ClassAutonomous:
		return "AUTONOMOUS"
	case ClassStandard:
		return "STANDARD"
	default:
		return fmt.Sprintf("VehicleClass(%d)", int(c))
	}
}

// ParseVehicleClass converts a class name as found in configuration files.
func ParseVehicleClass(s string) (VehicleClass, error) {
	switch s {
	case "EMERGENCY":
		return ClassEmergency, nil
	case "RESERVED":
		return ClassReserved, nil
	case "AUTONOMOUS":
		return ClassAutonomous, nil
	case "STANDARD":
		return ClassStandard, nil
	default:
		return 0, fmt.Errorf("unknown vehicle class %q", s)
	}
}

// Rank returns the priority rank of the class. Emergency vehicles rank 0 and
// are dequeued before everything else.
func (c VehicleClass) Rank() int { return int(c) }

// MarshalJSON encodes the class by name so persisted records stay readable.
func (c VehicleClass) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts a class name.
func (c *VehicleClass) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVehicleClass(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Vehicle represents a vehicle requesting a charging slot.
//
// BatteryLevel and ReservationID are the only mutable fields: BatteryLevel is
// refreshed on queue re-evaluation and ReservationID is attached when an
// active reservation is matched at admission time.
type Vehicle struct {
	ID            string
	Class         VehicleClass
	BatteryLevel  float64   // percentage in [0,100]
	ArrivedAt     time.Time // assigned at enqueue
	ReservationID string    // empty when no reservation is attached
}

// Validate checks that the vehicle request is structurally sound.
func (v Vehicle) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("vehicle id is required")
	}
	if v.BatteryLevel < 0 || v.BatteryLevel > 100 {
		return fmt.Errorf("battery level %.1f out of range [0,100]", v.BatteryLevel)
	}
	if v.Class < ClassEmergency || v.Class > ClassStandard {
		return fmt.Errorf("invalid vehicle class %d", int(v.Class))
	}
	return nil
}
