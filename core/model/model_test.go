package model

import (
	"encoding/json"
	"testing"
)

func TestVehicleClassRoundtrip(t *testing.T) {
	for _, c := range []VehicleClass{ClassEmergency, ClassReserved, ClassAutonomous, ClassStandard} {
		parsed, err := ParseVehicleClass(c.String())
		if err != nil {
			t.Fatalf("parse %s: %v", c, err)
		}
		if parsed != c {
			t.Fatalf("roundtrip %s -> %s", c, parsed)
		}
	}
	if _, err := ParseVehicleClass("TRUCK"); err == nil {
		t.Fatalf("expected error for unknown class")
	}
}

func TestVehicleClassJSON(t *testing.T) {
	data, err := json.Marshal(ClassEmergency)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"EMERGENCY"` {
		t.Fatalf("marshal = %s", data)
	}
	var c VehicleClass
	if err := json.Unmarshal([]byte(`"AUTONOMOUS"`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c != ClassAutonomous {
		t.Fatalf("unmarshal = %s", c)
	}
	if err := json.Unmarshal([]byte(`"TRUCK"`), &c); err == nil {
		t.Fatalf("expected error for unknown class")
	}
}

func TestVehicleValidate(t *testing.T) {
	cases := []struct {
		name    string
		v       Vehicle
		wantErr bool
	}{
		{"valid", Vehicle{ID: "v1", Class: ClassStandard, BatteryLevel: 50}, false},
		{"no_id", Vehicle{Class: ClassStandard, BatteryLevel: 50}, true},
		{"battery_low", Vehicle{ID: "v1", BatteryLevel: -1}, true},
		{"battery_high", Vehicle{ID: "v1", BatteryLevel: 101}, true},
		{"bad_class", Vehicle{ID: "v1", Class: VehicleClass(9), BatteryLevel: 50}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := c.v.Validate(); (err != nil) != c.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestSlotValidate(t *testing.T) {
	if err := (Slot{ID: "s1", PowerRatingKW: 22}).Validate(); err != nil {
		t.Fatalf("valid slot rejected: %v", err)
	}
	if err := (Slot{PowerRatingKW: 22}).Validate(); err == nil {
		t.Fatalf("slot without id accepted")
	}
	if err := (Slot{ID: "s1", PowerRatingKW: 0}).Validate(); err == nil {
		t.Fatalf("slot without power rating accepted")
	}
}
