package anomaly

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/user/plantsim"
	"github.com/user/plantsim/internal/config"
)

type captureSink struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *captureSink) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, payload)
	return nil
}

func (c *captureSink) Subscribe(topic string, handler plantsim.Handler) error { return nil }
func (c *captureSink) Ping(ctx context.Context) error                         { return nil }
func (c *captureSink) Close() error                                           { return nil }

func (c *captureSink) markers(t *testing.T) []Marker {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Marker, 0, len(c.msgs))
	for _, raw := range c.msgs {
		var m Marker
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("unmarshal marker: %v", err)
		}
		out = append(out, m)
	}
	return out
}

type fakeTarget struct {
	mu        sync.Mutex
	overrides plantsim.Overrides
	applied   int
	cleared   int
}

func (f *fakeTarget) ApplyOverrides(o plantsim.Overrides) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides = o
	f.applied++
}

func (f *fakeTarget) ClearOverrides() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides = nil
	f.cleared++
}

func (f *fakeTarget) state() (plantsim.Overrides, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overrides, f.applied, f.cleared
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, kv ...interface{}) {}
func (nopLogger) Info(msg string, kv ...interface{})  {}
func (nopLogger) Warn(msg string, kv ...interface{})  {}
func (nopLogger) Error(msg string, kv ...interface{}) {}

func testConfig(scenarios ...config.ScenarioConfig) *config.Config {
	cfg := config.Default()
	cfg.Anomaly.Topic = "test/anomalies"
	cfg.Anomaly.Scenarios = scenarios
	return cfg
}

func TestTriggerPublishesPairedMarkers(t *testing.T) {
	sink := &captureSink{}
	target := &fakeTarget{}
	cfg := testConfig(config.ScenarioConfig{
		Name:        "energy-spike",
		Description: "spike",
		Target:      "equipment",
		DurationSec: 1,
		Enabled:     true,
		Overrides:   map[string]any{"energyRange": []any{900.0, 901.0}},
	})

	e := New(cfg, sink, nopLogger{}, map[string][]plantsim.Overridable{
		"equipment": {target},
	})

	if o, _, _ := target.state(); o != nil {
		t.Fatal("overrides must be empty before START")
	}

	start := time.Now()
	if err := e.Trigger(context.Background(), "energy-spike"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	e.Wait()
	elapsed := time.Since(start)

	if elapsed < 900*time.Millisecond {
		t.Fatalf("END observed after %v, before the scenario duration", elapsed)
	}

	markers := sink.markers(t)
	if len(markers) != 2 {
		t.Fatalf("expected exactly one START and one END, got %d markers", len(markers))
	}
	if markers[0].Phase != "START" || markers[1].Phase != "END" {
		t.Fatalf("unexpected phases %q, %q", markers[0].Phase, markers[1].Phase)
	}
	if markers[0].AnomalyId == "" || markers[0].AnomalyId != markers[1].AnomalyId {
		t.Fatalf("END must share START's id: %q vs %q", markers[0].AnomalyId, markers[1].AnomalyId)
	}
	if markers[0].Scenario != "energy-spike" || markers[0].Stream != "equipment" {
		t.Fatalf("unexpected marker %+v", markers[0])
	}

	o, applied, cleared := target.state()
	if o != nil {
		t.Fatal("overrides must be empty after END")
	}
	if applied != 1 || cleared != 1 {
		t.Fatalf("expected one apply and one clear, got %d/%d", applied, cleared)
	}
}

func TestZeroDurationIsFireAndForget(t *testing.T) {
	sink := &captureSink{}
	target := &fakeTarget{}
	cfg := testConfig(config.ScenarioConfig{
		Name:      "shipment-delays",
		Target:    "supply-chain",
		Enabled:   true,
		Overrides: map[string]any{"delayProbability": 1.0},
	})

	e := New(cfg, sink, nopLogger{}, map[string][]plantsim.Overridable{
		"supply-chain": {target},
	})
	if err := e.Trigger(context.Background(), "shipment-delays"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	e.Wait()

	markers := sink.markers(t)
	if len(markers) != 1 || markers[0].Phase != "START" {
		t.Fatalf("expected a single START marker, got %+v", markers)
	}
	if _, applied, cleared := target.state(); applied != 1 || cleared != 0 {
		t.Fatalf("zero duration must never revert, got %d applies %d clears", applied, cleared)
	}
}

func TestUnmappedTargetStillPublishesMarkers(t *testing.T) {
	sink := &captureSink{}
	cfg := testConfig(config.ScenarioConfig{
		Name:        "ghost",
		Target:      "no-such-stream",
		DurationSec: 0,
		Enabled:     true,
	})

	e := New(cfg, sink, nopLogger{}, map[string][]plantsim.Overridable{})
	if err := e.Trigger(context.Background(), "ghost"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	e.Wait()

	if markers := sink.markers(t); len(markers) != 1 {
		t.Fatalf("expected the marker to publish for an unmapped target, got %d", len(markers))
	}
}

func TestTriggerUnknownScenario(t *testing.T) {
	cfg := testConfig()
	e := New(cfg, &captureSink{}, nopLogger{}, nil)
	if err := e.Trigger(context.Background(), "nope"); err == nil {
		t.Fatal("expected an error for an unknown scenario")
	}
}

func TestSameTargetExecutionsSerialize(t *testing.T) {
	sink := &captureSink{}
	target := &fakeTarget{}
	sc := config.ScenarioConfig{
		Name:        "energy-spike",
		Target:      "equipment",
		DurationSec: 1,
		Enabled:     true,
		Overrides:   map[string]any{"energyRange": []any{900.0, 901.0}},
	}
	cfg := testConfig(sc)
	e := New(cfg, sink, nopLogger{}, map[string][]plantsim.Overridable{
		"equipment": {target},
	})

	if err := e.Trigger(context.Background(), "energy-spike"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if err := e.Trigger(context.Background(), "energy-spike"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	e.Wait()

	// Serialized executions never interleave, so both runs complete the full
	// apply/clear cycle and the target ends clean.
	o, applied, cleared := target.state()
	if o != nil {
		t.Fatal("overrides must be empty after both executions")
	}
	if applied != 2 || cleared != 2 {
		t.Fatalf("expected 2 applies and 2 clears, got %d/%d", applied, cleared)
	}

	markers := sink.markers(t)
	if len(markers) != 4 {
		t.Fatalf("expected 4 markers, got %d", len(markers))
	}
	// Phases must strictly alternate when executions are serialized.
	for i, m := range markers {
		want := "START"
		if i%2 == 1 {
			want = "END"
		}
		if m.Phase != want {
			t.Fatalf("marker %d has phase %q, want %q", i, m.Phase, want)
		}
	}
}

func TestCancelledRunStopsCleanly(t *testing.T) {
	cfg := testConfig(config.ScenarioConfig{
		Name:    "energy-spike",
		Target:  "equipment",
		Enabled: true,
	})
	cfg.Anomaly.IntervalMin = 60

	e := New(cfg, &captureSink{}, nopLogger{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
