package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/user/plantsim"
	"github.com/user/plantsim/internal/config"
	"github.com/user/plantsim/pkg/metrics"
)

// Marker is the payload published at both edges of a scenario execution. The
// END marker shares the START's AnomalyId.
type Marker struct {
	Timestamp   string             `json:"Timestamp"`
	AnomalyId   string             `json:"AnomalyId"`
	Scenario    string             `json:"Scenario"`
	Description string             `json:"Description"`
	Stream      string             `json:"Stream"`
	DurationSec int                `json:"DurationSec"`
	Phase       string             `json:"Phase"`
	Overrides   plantsim.Overrides `json:"Overrides"`
}

// Engine picks and executes anomaly scenarios against stream targets. Each
// execution follows idle, override applied, sleep for the duration, override
// cleared. Executions against the same target slug are serialized with a
// per-target lock, so a manual trigger and the periodic loop can never leave
// overrides behind on the same stream.
type Engine struct {
	cfg    *config.Config
	sink   plantsim.Sink
	logger plantsim.Logger

	// targets are all stream instances per slug, one per site.
	targets map[string][]plantsim.Overridable

	lockMu      sync.Mutex
	targetLocks map[string]*sync.Mutex

	wg   sync.WaitGroup
	cron *cron.Cron
}

func New(cfg *config.Config, sink plantsim.Sink, logger plantsim.Logger, targets map[string][]plantsim.Overridable) *Engine {
	return &Engine{
		cfg:         cfg,
		sink:        sink,
		logger:      logger,
		targets:     targets,
		targetLocks: make(map[string]*sync.Mutex),
	}
}

// Run drives the periodic loop: sleep the configured interval plus jitter in
// [0, interval/4), pick one enabled scenario at random, execute it. Scenarios
// with a cron schedule also fire on their schedule. Run blocks until the
// context is cancelled and all in-flight executions finished.
func (e *Engine) Run(ctx context.Context) error {
	e.startSchedules(ctx)
	defer e.stopSchedules()
	defer e.wg.Wait()

	for {
		snap := e.cfg.AnomalySnapshot()
		base := time.Duration(snap.IntervalMin) * time.Minute
		if base <= 0 {
			base = time.Second
		}
		wait := base + time.Duration(rand.Int63n(int64(base/4)+1))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		sc, ok := pickEnabled(snap.Scenarios)
		if !ok {
			e.logger.Debug("no enabled anomaly scenarios")
			continue
		}
		e.execute(ctx, sc, "periodic")
	}
}

// Trigger executes a named scenario immediately, bypassing the periodic
// timer. Disabled scenarios can be triggered manually.
func (e *Engine) Trigger(ctx context.Context, name string) error {
	snap := e.cfg.AnomalySnapshot()
	for _, sc := range snap.Scenarios {
		if sc.Name == name {
			e.wg.Add(1)
			go func(sc config.ScenarioConfig) {
				defer e.wg.Done()
				defer func() {
					if r := recover(); r != nil {
						e.logger.Error("anomaly execution panicked", "scenario", sc.Name, "panic", r)
					}
				}()
				e.execute(ctx, sc, "manual")
			}(sc)
			return nil
		}
	}
	return fmt.Errorf("unknown anomaly scenario %q", name)
}

// Wait blocks until every manually triggered execution has finished. Run
// already waits for its own; the supervisor calls this when the periodic loop
// is disabled.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Scenarios lists the configured scenarios for the control plane.
func (e *Engine) Scenarios() []config.ScenarioConfig {
	return e.cfg.AnomalySnapshot().Scenarios
}

func pickEnabled(scenarios []config.ScenarioConfig) (config.ScenarioConfig, bool) {
	var enabled []config.ScenarioConfig
	for _, sc := range scenarios {
		if sc.Enabled {
			enabled = append(enabled, sc)
		}
	}
	if len(enabled) == 0 {
		return config.ScenarioConfig{}, false
	}
	return enabled[rand.Intn(len(enabled))], true
}

func (e *Engine) targetLock(slug string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	if l, ok := e.targetLocks[slug]; ok {
		return l
	}
	l := &sync.Mutex{}
	e.targetLocks[slug] = l
	return l
}

func (e *Engine) execute(ctx context.Context, sc config.ScenarioConfig, trigger string) {
	lock := e.targetLock(sc.Target)
	lock.Lock()
	defer lock.Unlock()

	id := uuid.New().String()
	targets := e.targets[sc.Target]
	if len(targets) == 0 && sc.Target != "" {
		e.logger.Warn("anomaly target has no stream, overrides are a no-op", "scenario", sc.Name, "target", sc.Target)
	}

	e.logger.Info("anomaly starting", "scenario", sc.Name, "target", sc.Target, "durationSec", sc.DurationSec, "trigger", trigger, "id", id)
	e.publishMarker(ctx, sc, id, "START")
	for _, target := range targets {
		target.ApplyOverrides(plantsim.Overrides(sc.Overrides))
	}
	metrics.AnomaliesExecuted.WithLabelValues(sc.Name, trigger).Inc()

	// DurationSec == 0 marks an instantaneous scenario: no revert, no END.
	if sc.DurationSec == 0 {
		return
	}

	t := time.NewTimer(time.Duration(sc.DurationSec) * time.Second)
	select {
	case <-ctx.Done():
		// Cancellation mid-scenario is lossy: the END marker never fires,
		// but overrides are still cleared on the way out.
		t.Stop()
		for _, target := range targets {
			target.ClearOverrides()
		}
		return
	case <-t.C:
	}

	for _, target := range targets {
		target.ClearOverrides()
	}
	e.publishMarker(ctx, sc, id, "END")
	e.logger.Info("anomaly ended", "scenario", sc.Name, "id", id)
}

func (e *Engine) publishMarker(ctx context.Context, sc config.ScenarioConfig, id, phase string) {
	topic := sc.Topic
	if topic == "" {
		topic = e.cfg.AnomalySnapshot().Topic
	}
	if topic == "" {
		return
	}

	data, err := json.Marshal(Marker{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		AnomalyId:   id,
		Scenario:    sc.Name,
		Description: sc.Description,
		Stream:      sc.Target,
		DurationSec: sc.DurationSec,
		Phase:       phase,
		Overrides:   plantsim.Overrides(sc.Overrides),
	})
	if err != nil {
		e.logger.Error("marker marshal failed", "scenario", sc.Name, "error", err)
		return
	}
	if err := e.sink.Publish(ctx, topic, data, byte(e.cfg.Transport.QoS), false); err != nil && ctx.Err() == nil {
		e.logger.Error("marker publish failed", "scenario", sc.Name, "phase", phase, "error", err)
	}
}

func (e *Engine) startSchedules(ctx context.Context) {
	snap := e.cfg.AnomalySnapshot()
	var c *cron.Cron
	for _, sc := range snap.Scenarios {
		if sc.Schedule == "" {
			continue
		}
		if c == nil {
			c = cron.New()
		}
		name := sc.Name
		_, err := c.AddFunc(sc.Schedule, func() {
			if err := e.Trigger(ctx, name); err != nil {
				e.logger.Error("scheduled anomaly failed", "scenario", name, "error", err)
			}
		})
		if err != nil {
			e.logger.Error("invalid anomaly schedule", "scenario", sc.Name, "schedule", sc.Schedule, "error", err)
		}
	}
	if c != nil {
		c.Start()
		e.cron = c
	}
}

func (e *Engine) stopSchedules() {
	if e.cron != nil {
		<-e.cron.Stop().Done()
	}
}
