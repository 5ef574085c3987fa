// Package config loads the station configuration from YAML or JSON files with
// optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/voltgrid/stationd/core/allocation"
	"github.com/voltgrid/stationd/core/billing"
	"github.com/voltgrid/stationd/core/metrics"
	"github.com/voltgrid/stationd/core/model"
	"github.com/voltgrid/stationd/infra/notify"
)

// SlotConfig describes one physical charging slot.
type SlotConfig struct {
	ID      string  `json:"id"`
	PowerKW float64 `json:"power_kw"`
}

// StationConfig describes the physical station.
type StationConfig struct {
	Name  string       `json:"name"`
	Slots []SlotConfig `json:"slots"`
}

// TariffConfig is the rate card keyed by class name.
type TariffConfig struct {
	RatePerKWh          map[string]float64 `json:"rate_per_kwh"`
	GracePeriodSeconds  float64            `json:"grace_period_seconds"`
	IdleFeeRate         float64            `json:"idle_fee_rate"`
	ConnectionFee       float64            `json:"connection_fee"`
	ReservationDiscount float64            `json:"reservation_discount"`
}

// CompatibilityConfig is the minimum slot power per class name.
type CompatibilityConfig struct {
	MinimumKW map[string]float64 `json:"minimum_kw"`
}

// LedgerConfig selects the billing ledger backend.
type LedgerConfig struct {
	Type string `json:"type"` // "memory" or "jsonl"
	Path string `json:"path"`
}

type Config struct {
	Station       StationConfig       `json:"station"`
	Tariffs       TariffConfig        `json:"tariffs"`
	Compatibility CompatibilityConfig `json:"compatibility"`
	Metrics       metrics.Config      `json:"metrics"`
	Notifier      notify.Config       `json:"notifier"`
	Ledger        LedgerConfig        `json:"ledger"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("CS_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "cs_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	c.Metrics.SetDefaults()
	if c.Ledger.Type == "" {
		c.Ledger.Type = "memory"
	}
}

// Validate checks the structural soundness of the configuration before any
// component is built from it.
func (c *Config) Validate() error {
	if len(c.Station.Slots) == 0 {
		return fmt.Errorf("station requires at least one slot")
	}
	seen := make(map[string]bool, len(c.Station.Slots))
	for _, s := range c.Station.Slots {
		if s.ID == "" {
			return fmt.Errorf("slot id is required")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate slot id %q", s.ID)
		}
		seen[s.ID] = true
		if s.PowerKW <= 0 {
			return fmt.Errorf("slot %s power rating must be positive", s.ID)
		}
	}
	for name := range c.Tariffs.RatePerKWh {
		if _, err := model.ParseVehicleClass(name); err != nil {
			return fmt.Errorf("tariffs: %w", err)
		}
	}
	for name := range c.Compatibility.MinimumKW {
		if _, err := model.ParseVehicleClass(name); err != nil {
			return fmt.Errorf("compatibility: %w", err)
		}
	}
	switch c.Ledger.Type {
	case "memory":
	case "jsonl":
		if c.Ledger.Path == "" {
			return fmt.Errorf("jsonl ledger requires a path")
		}
	default:
		return fmt.Errorf("unknown ledger type %q", c.Ledger.Type)
	}
	return nil
}

// Slots converts the slot section to model slots.
func (c *Config) Slots() []model.Slot {
	out := make([]model.Slot, 0, len(c.Station.Slots))
	for _, s := range c.Station.Slots {
		out = append(out, model.Slot{ID: s.ID, PowerRatingKW: s.PowerKW})
	}
	return out
}

// RateCard converts the tariff section. Validate must have passed.
func (c *Config) RateCard() billing.RateCard {
	rates := make(map[model.VehicleClass]float64, len(c.Tariffs.RatePerKWh))
	for name, rate := range c.Tariffs.RatePerKWh {
		class, err := model.ParseVehicleClass(name)
		if err != nil {
			continue
		}
		rates[class] = rate
	}
	return billing.RateCard{
		RatePerKWh:          rates,
		GracePeriodSeconds:  c.Tariffs.GracePeriodSeconds,
		IdleFeeRate:         c.Tariffs.IdleFeeRate,
		ConnectionFee:       c.Tariffs.ConnectionFee,
		ReservationDiscount: c.Tariffs.ReservationDiscount,
	}
}

// AllocationConfig converts the compatibility section.
func (c *Config) AllocationConfig() allocation.Config {
	minimums := make(map[model.VehicleClass]float64, len(c.Compatibility.MinimumKW))
	for name, kw := range c.Compatibility.MinimumKW {
		class, err := model.ParseVehicleClass(name)
		if err != nil {
			continue
		}
		minimums[class] = kw
	}
	return allocation.Config{MinimumKWByClass: minimums}
}
