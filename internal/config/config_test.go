package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plantsim.yaml")
	data := `
transport:
  type: mqtt
  settings:
    broker_url: tcp://localhost:1883
streams:
  equipment:
    enabled: true
    intervalSec: 2
    energyRange: [100, 200]
anomaly:
  enabled: false
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport.Type != "mqtt" {
		t.Errorf("transport type = %q", cfg.Transport.Type)
	}
	if cfg.Streams.Equipment.IntervalSec != 2 {
		t.Errorf("intervalSec = %d", cfg.Streams.Equipment.IntervalSec)
	}
	if cfg.Streams.Equipment.EnergyRange != (Range{100, 200}) {
		t.Errorf("energyRange = %v", cfg.Streams.Equipment.EnergyRange)
	}
	if cfg.Anomaly.Enabled {
		t.Error("anomaly should be disabled by the file")
	}
	// Sections absent from the file keep their defaults.
	if cfg.Streams.Heartbeat.HeartbeatIntervalSec == 0 {
		t.Error("heartbeat default lost on load")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/plantsim.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSetScalar(t *testing.T) {
	cfg := Default()
	if err := cfg.Set("streams.equipment.intervalSec", float64(7)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := cfg.Live().Equipment.IntervalSec; got != 7 {
		t.Errorf("intervalSec = %d, want 7", got)
	}

	if err := cfg.Set("streams.machineState.errorProbability", 0.5); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := cfg.Live().MachineState.ErrorProbability; got != 0.5 {
		t.Errorf("errorProbability = %v", got)
	}
}

func TestSetRange(t *testing.T) {
	cfg := Default()
	if err := cfg.Set("streams.equipment.energyRange", []any{900.0, 901.0}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := cfg.Live().Equipment.EnergyRange; got != (Range{900, 901}) {
		t.Errorf("energyRange = %v", got)
	}

	if err := cfg.Set("streams.equipment.energyRange", []any{10.0, 5.0}); err == nil {
		t.Error("inverted range should be rejected")
	}
	if err := cfg.Set("streams.equipment.energyRange", []any{1.0}); err == nil {
		t.Error("1-element range should be rejected")
	}
}

func TestSetUnknownPath(t *testing.T) {
	cfg := Default()
	err := cfg.Set("plant.enterprise", "Evil Corp")
	if !errors.Is(err, ErrUnknownPath) {
		t.Fatalf("expected ErrUnknownPath, got %v", err)
	}
}

func TestSetCoercionFailure(t *testing.T) {
	cfg := Default()
	if err := cfg.Set("streams.equipment.intervalSec", "fast"); err == nil {
		t.Error("non-numeric string should not coerce to int")
	}
	if err := cfg.Set("streams.machineState.errorProbability", 1.5); err == nil {
		t.Error("probability above 1 should be rejected")
	}
}

func TestSetInterval(t *testing.T) {
	cfg := Default()

	if err := cfg.SetInterval("equipment", 3); err != nil {
		t.Fatalf("SetInterval: %v", err)
	}
	if got := cfg.Live().Equipment.IntervalSec; got != 3 {
		t.Errorf("intervalSec = %d", got)
	}

	if err := cfg.SetInterval("heartbeat", 45); err != nil {
		t.Fatalf("SetInterval: %v", err)
	}
	if got := cfg.Live().Heartbeat.HeartbeatIntervalSec; got != 45 {
		t.Errorf("heartbeatIntervalSec = %d", got)
	}

	// [min,max] streams collapse to a fixed dwell; max can never drop below min.
	if err := cfg.SetInterval("machine-state", 12); err != nil {
		t.Fatalf("SetInterval: %v", err)
	}
	d := cfg.Live().MachineState.DwellSec
	if d.Min() != 12 || d.Max() != 12 {
		t.Errorf("dwellSec = %v", d)
	}
	if d.Max() < d.Min() {
		t.Error("dwell max below min")
	}

	if err := cfg.SetInterval("nosuch", 5); !errors.Is(err, ErrNoInterval) {
		t.Errorf("expected ErrNoInterval, got %v", err)
	}
	if err := cfg.SetInterval("equipment", 0); err == nil {
		t.Error("zero interval should be rejected")
	}
}

func TestSetEnabled(t *testing.T) {
	cfg := Default()
	if err := cfg.SetEnabled("production", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if cfg.Live().Production.Enabled {
		t.Error("production still enabled")
	}
	if err := cfg.SetEnabled("nosuch", true); err == nil {
		t.Error("unknown stream should error")
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := Default()
	cfg.Streams.Production.ScrapRange = Range{10, 2}
	cfg.Anomaly.Scenarios = append(cfg.Anomaly.Scenarios, ScenarioConfig{Name: "orphan"})
	warnings := cfg.Validate()
	if len(warnings) < 2 {
		t.Fatalf("expected warnings for inverted range and missing target, got %v", warnings)
	}
}

func TestDefaultHasNoWarnings(t *testing.T) {
	if w := Default().Validate(); len(w) != 0 {
		t.Errorf("default config should validate cleanly, got %v", w)
	}
}
