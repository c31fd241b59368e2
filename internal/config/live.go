package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrUnknownPath is returned by Set for any path outside the live-tunable
// whitelist.
var ErrUnknownPath = errors.New("unknown config path")

// ErrNoInterval is returned by SetInterval for streams without a timing field.
var ErrNoInterval = errors.New("stream has no interval field")

// setter mutates one whitelisted leaf field. The caller holds the write lock.
type setter func(c *Config, value any) error

// setters is the explicit whitelist of live-tunable dotted paths. Anything
// not listed here cannot be mutated at runtime.
var setters = map[string]setter{
	"streams.equipment.enabled":          func(c *Config, v any) error { return asBool(v, &c.Streams.Equipment.Enabled) },
	"streams.equipment.intervalSec":      func(c *Config, v any) error { return asInt(v, &c.Streams.Equipment.IntervalSec) },
	"streams.equipment.energyRange":      func(c *Config, v any) error { return asRange(v, &c.Streams.Equipment.EnergyRange) },
	"streams.equipment.temperatureRange": func(c *Config, v any) error { return asRange(v, &c.Streams.Equipment.TemperatureRange) },
	"streams.equipment.vibrationRange":   func(c *Config, v any) error { return asRange(v, &c.Streams.Equipment.VibrationRange) },
	"streams.equipment.cycleSecRange":    func(c *Config, v any) error { return asRange(v, &c.Streams.Equipment.CycleSecRange) },

	"streams.machineState.enabled":  func(c *Config, v any) error { return asBool(v, &c.Streams.MachineState.Enabled) },
	"streams.machineState.dwellSec": func(c *Config, v any) error { return asRange(v, &c.Streams.MachineState.DwellSec) },
	"streams.machineState.errorProbability": func(c *Config, v any) error {
		return asProbability(v, &c.Streams.MachineState.ErrorProbability)
	},
	"streams.machineState.maintenanceProbability": func(c *Config, v any) error {
		return asProbability(v, &c.Streams.MachineState.MaintenanceProbability)
	},

	"streams.production.enabled":     func(c *Config, v any) error { return asBool(v, &c.Streams.Production.Enabled) },
	"streams.production.intervalSec": func(c *Config, v any) error { return asInt(v, &c.Streams.Production.IntervalSec) },
	"streams.production.goodRange":   func(c *Config, v any) error { return asRange(v, &c.Streams.Production.GoodRange) },
	"streams.production.scrapRange":  func(c *Config, v any) error { return asRange(v, &c.Streams.Production.ScrapRange) },

	"streams.consumption.enabled":       func(c *Config, v any) error { return asBool(v, &c.Streams.Consumption.Enabled) },
	"streams.consumption.intervalSec":   func(c *Config, v any) error { return asInt(v, &c.Streams.Consumption.IntervalSec) },
	"streams.consumption.quantityRange": func(c *Config, v any) error { return asRange(v, &c.Streams.Consumption.QuantityRange) },

	"streams.batch.enabled":  func(c *Config, v any) error { return asBool(v, &c.Streams.Batch.Enabled) },
	"streams.batch.dwellSec": func(c *Config, v any) error { return asRange(v, &c.Streams.Batch.DwellSec) },

	"streams.supplyChain.enabled":     func(c *Config, v any) error { return asBool(v, &c.Streams.SupplyChain.Enabled) },
	"streams.supplyChain.intervalSec": func(c *Config, v any) error { return asInt(v, &c.Streams.SupplyChain.IntervalSec) },
	"streams.supplyChain.delayProbability": func(c *Config, v any) error {
		return asProbability(v, &c.Streams.SupplyChain.DelayProbability)
	},

	"streams.heartbeat.enabled": func(c *Config, v any) error { return asBool(v, &c.Streams.Heartbeat.Enabled) },
	"streams.heartbeat.heartbeatIntervalSec": func(c *Config, v any) error {
		return asInt(v, &c.Streams.Heartbeat.HeartbeatIntervalSec)
	},

	"streams.twin.enabled":     func(c *Config, v any) error { return asBool(v, &c.Streams.Twin.Enabled) },
	"streams.twin.intervalSec": func(c *Config, v any) error { return asInt(v, &c.Streams.Twin.IntervalSec) },

	"anomaly.enabled":     func(c *Config, v any) error { return asBool(v, &c.Anomaly.Enabled) },
	"anomaly.intervalMin": func(c *Config, v any) error { return asInt(v, &c.Anomaly.IntervalMin) },
}

// Set assigns a value to a whitelisted dotted path, coercing scalars to the
// field's type. List-typed fields (ranges) are assigned structurally.
func (c *Config) Set(path string, value any) error {
	set, ok := setters[path]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPath, path)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := set(c, value); err != nil {
		return fmt.Errorf("set %q: %w", path, err)
	}
	return nil
}

// Paths returns the live-tunable whitelist, for error replies and docs.
func Paths() []string {
	out := make([]string, 0, len(setters))
	for p := range setters {
		out = append(out, p)
	}
	return out
}

// SetInterval resolves whichever timing field the named stream exposes and
// assigns sec to it. Streams with a [min,max] dwell pair get both bounds set
// to sec, so max can never end up below min.
func (c *Config) SetInterval(slug string, sec int) error {
	if sec <= 0 {
		return fmt.Errorf("interval must be positive, got %d", sec)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch slug {
	case "equipment":
		c.Streams.Equipment.IntervalSec = sec
	case "production":
		c.Streams.Production.IntervalSec = sec
	case "material-consumption":
		c.Streams.Consumption.IntervalSec = sec
	case "supply-chain":
		c.Streams.SupplyChain.IntervalSec = sec
	case "twin":
		c.Streams.Twin.IntervalSec = sec
	case "heartbeat":
		c.Streams.Heartbeat.HeartbeatIntervalSec = sec
	case "machine-state":
		c.Streams.MachineState.DwellSec = Range{float64(sec), float64(sec)}
	case "batch":
		c.Streams.Batch.DwellSec = Range{float64(sec), float64(sec)}
	default:
		return fmt.Errorf("%w: %q", ErrNoInterval, slug)
	}
	return nil
}

// SetEnabled flips the named stream's config flag. The supervisor's task
// registry, not this flag, is authoritative for the live task.
func (c *Config) SetEnabled(slug string, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch slug {
	case "equipment":
		c.Streams.Equipment.Enabled = on
	case "machine-state":
		c.Streams.MachineState.Enabled = on
	case "production":
		c.Streams.Production.Enabled = on
	case "material-consumption":
		c.Streams.Consumption.Enabled = on
	case "batch":
		c.Streams.Batch.Enabled = on
	case "supply-chain":
		c.Streams.SupplyChain.Enabled = on
	case "heartbeat":
		c.Streams.Heartbeat.Enabled = on
	case "twin":
		c.Streams.Twin.Enabled = on
	default:
		return fmt.Errorf("unknown stream %q", slug)
	}
	return nil
}

func asBool(v any, dst *bool) error {
	switch t := v.(type) {
	case bool:
		*dst = t
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return fmt.Errorf("cannot coerce %q to bool", t)
		}
		*dst = b
	default:
		return fmt.Errorf("cannot coerce %T to bool", v)
	}
	return nil
}

func asInt(v any, dst *int) error {
	switch t := v.(type) {
	case int:
		*dst = t
	case int64:
		*dst = int(t)
	case float64:
		if t != math.Trunc(t) {
			return fmt.Errorf("cannot coerce %v to int", t)
		}
		*dst = int(t)
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return fmt.Errorf("cannot coerce %q to int", t)
		}
		*dst = n
	default:
		return fmt.Errorf("cannot coerce %T to int", v)
	}
	return nil
}

func asFloat(v any, dst *float64) error {
	switch t := v.(type) {
	case float64:
		*dst = t
	case int:
		*dst = float64(t)
	case int64:
		*dst = float64(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return fmt.Errorf("cannot coerce %q to float", t)
		}
		*dst = f
	default:
		return fmt.Errorf("cannot coerce %T to float", v)
	}
	return nil
}

func asProbability(v any, dst *float64) error {
	var f float64
	if err := asFloat(v, &f); err != nil {
		return err
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("probability %v outside [0, 1]", f)
	}
	*dst = f
	return nil
}

func asRange(v any, dst *Range) error {
	items, ok := v.([]any)
	if !ok {
		return fmt.Errorf("cannot coerce %T to [min, max] range", v)
	}
	if len(items) != 2 {
		return fmt.Errorf("range needs exactly 2 elements, got %d", len(items))
	}
	var r Range
	for i, item := range items {
		if err := asFloat(item, &r[i]); err != nil {
			return err
		}
	}
	if r.Max() < r.Min() {
		return fmt.Errorf("range max %v below min %v", r.Max(), r.Min())
	}
	*dst = r
	return nil
}
