package allocation

import (
	"fmt"

	"github.com/voltgrid/stationd/core/model"
)

// Config holds the compatibility rule of the station: the minimum slot power
// rating each vehicle class requires. It is supplied at construction and only
// replaced wholesale through Reconfigure.
type Config struct {
	// MinimumKWByClass maps each vehicle class to the power rating a slot
	// must meet or exceed to serve it. Classes without an entry have no
	// minimum and accept any slot.
	MinimumKWByClass map[model.VehicleClass]float64
}

// Validate checks the compatibility table.
func (c Config) Validate() error {
	for class, kw := range c.MinimumKWByClass {
		if kw < 0 {
			return fmt.Errorf("minimum kW for %s must not be negative", class)
		}
	}
	return nil
}

// requiredKW returns the minimum power rating for the class.
func (c Config) requiredKW(class model.VehicleClass) float64 {
	return c.MinimumKWByClass[class]
}
