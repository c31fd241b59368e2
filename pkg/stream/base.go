package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/user/plantsim"
	"github.com/user/plantsim/internal/config"
	"github.com/user/plantsim/pkg/metrics"
	"github.com/user/plantsim/pkg/registry"
	"github.com/user/plantsim/pkg/topic"
)

// Deps is everything a stream needs from the supervisor. The config is shared
// by reference so control-plane edits are visible on the next tick.
type Deps struct {
	Cfg      *config.Config
	Sink     plantsim.Sink
	Resolver *topic.Resolver
	Registry *registry.Registry
	Logger   plantsim.Logger
}

// Base carries the pieces common to every stream: identity, transport,
// override storage. Overrides are swapped atomically between ticks, never
// observed mid-tick.
type Base struct {
	slug string
	site string
	deps Deps

	mu        sync.RWMutex
	overrides plantsim.Overrides
}

func newBase(slug, site string, deps Deps) Base {
	return Base{slug: slug, site: site, deps: deps}
}

func (b *Base) Slug() string { return b.slug }
func (b *Base) Site() string { return b.site }

func (b *Base) ApplyOverrides(o plantsim.Overrides) {
	b.mu.Lock()
	b.overrides = o
	b.mu.Unlock()
	b.deps.Logger.Info("overrides applied", "stream", b.slug, "site", b.site, "overrides", o)
}

func (b *Base) ClearOverrides() {
	b.mu.Lock()
	b.overrides = nil
	b.mu.Unlock()
	b.deps.Logger.Info("overrides cleared", "stream", b.slug, "site", b.site)
}

// snapshot returns the override map in effect for the tick that is starting.
func (b *Base) snapshot() plantsim.Overrides {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.overrides
}

// publish resolves the topic for the entity context, marshals the payload and
// hands it to the sink. Transport errors are logged and counted, never fatal;
// the stream retries on its next tick.
func (b *Base) publish(ctx context.Context, payload any, ec topic.EntityContext) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.deps.Logger.Error("payload marshal failed", "stream", b.slug, "error", err)
		metrics.PublishErrors.WithLabelValues(b.slug, b.site).Inc()
		return
	}

	t := b.deps.Resolver.Resolve(b.slug, ec)
	qos := byte(b.deps.Cfg.Transport.QoS)
	if err := b.deps.Sink.Publish(ctx, t, data, qos, b.deps.Cfg.Transport.Retain); err != nil {
		if ctx.Err() == nil {
			b.deps.Logger.Error("publish failed", "stream", b.slug, "topic", t, "error", err)
		}
		metrics.PublishErrors.WithLabelValues(b.slug, b.site).Inc()
		return
	}
	metrics.MessagesPublished.WithLabelValues(b.slug, b.site).Inc()
}

// sleepTick suspends until the next tick or cancellation. Returns false when
// the context is done so loops can exit cleanly.
func sleepTick(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// overrideRange resolves a [min, max] parameter: the override value when the
// key is present and well formed, the live config value otherwise.
func overrideRange(o plantsim.Overrides, key string, def config.Range) config.Range {
	v, ok := o[key]
	if !ok {
		return def
	}
	switch val := v.(type) {
	case config.Range:
		return val
	case [2]float64:
		return config.Range(val)
	case []any:
		if len(val) == 2 {
			min, okMin := toFloat(val[0])
			max, okMax := toFloat(val[1])
			if okMin && okMax {
				return config.Range{min, max}
			}
		}
	case []float64:
		if len(val) == 2 {
			return config.Range{val[0], val[1]}
		}
	}
	return def
}

// overrideFloat resolves a scalar parameter the same way.
func overrideFloat(o plantsim.Overrides, key string, def float64) float64 {
	v, ok := o[key]
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return def
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}

// machine pairs an equipment id with its owning line for entity resolution.
type machine struct {
	id   string
	line string
}

func machines(site config.SiteConfig) []machine {
	var out []machine
	for _, area := range site.Areas {
		for _, line := range area.Lines {
			for _, cell := range line.Cells {
				for _, eqp := range cell.Equipment {
					out = append(out, machine{id: eqp, line: line.Name})
				}
			}
		}
	}
	return out
}

func lines(site config.SiteConfig) []string {
	var out []string
	for _, area := range site.Areas {
		for _, line := range area.Lines {
			out = append(out, line.Name)
		}
	}
	return out
}

func interval(sec int) time.Duration {
	if sec <= 0 {
		return time.Second
	}
	return time.Duration(sec) * time.Second
}

func secondsDuration(sec float64) time.Duration {
	if sec <= 0 {
		return time.Second
	}
	return time.Duration(sec * float64(time.Second))
}
