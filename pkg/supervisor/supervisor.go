package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/user/plantsim"
	"github.com/user/plantsim/internal/config"
	"github.com/user/plantsim/pkg/anomaly"
	"github.com/user/plantsim/pkg/control"
	"github.com/user/plantsim/pkg/metrics"
	"github.com/user/plantsim/pkg/registry"
	"github.com/user/plantsim/pkg/stream"
	"github.com/user/plantsim/pkg/topic"
)

// slugOrder fixes the listing order for status output.
var slugOrder = []string{
	"equipment", "machine-state", "production", "material-consumption",
	"batch", "supply-chain", "heartbeat", "twin",
}

// task is one running stream instance. The task registry, not the config
// flag, is authoritative for what is live.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor wires the sink, registry, streams, anomaly engine and control
// plane together and owns every task's lifecycle.
type Supervisor struct {
	cfg      *config.Config
	logger   plantsim.Logger
	sink     plantsim.Sink
	registry *registry.Registry
	engine   *anomaly.Engine
	handler  *control.Handler

	mu      sync.Mutex
	base    context.Context
	streams map[string][]plantsim.Stream
	tasks   map[string][]*task
}

// New builds the full simulator from configuration. The sink is constructed
// by the transport factory and shared by every component.
func New(cfg *config.Config, sink plantsim.Sink, logger plantsim.Logger) (*Supervisor, error) {
	res := topic.NewResolver(hierarchyOf(cfg.Plant), topic.Config{
		Flat:      cfg.Topics.Flat,
		Prefix:    cfg.Topics.Prefix,
		Telemetry: cfg.Topics.Telemetry,
		Events:    cfg.Topics.Events,
		State:     cfg.Topics.State,
		Inbound:   cfg.Topics.Inbound,
	})
	reg := registry.New()

	deps := stream.Deps{
		Cfg:      cfg,
		Sink:     sink,
		Resolver: res,
		Registry: reg,
		Logger:   logger,
	}

	streams := make(map[string][]plantsim.Stream)
	targets := make(map[string][]plantsim.Overridable)
	add := func(s plantsim.Stream) {
		streams[s.Slug()] = append(streams[s.Slug()], s)
		if o, ok := s.(plantsim.Overridable); ok {
			targets[s.Slug()] = append(targets[s.Slug()], o)
		}
	}
	for _, site := range cfg.Plant.Sites {
		add(stream.NewEquipment(deps, site))
		add(stream.NewMachineState(deps, site))
		add(stream.NewProduction(deps, site))
		add(stream.NewConsumption(deps, site, cfg.Plant.Materials))
		add(stream.NewBatch(deps, site))
		add(stream.NewSupplyChain(deps, site, cfg.Plant.Materials))
		add(stream.NewHeartbeat(deps, site))
		add(stream.NewTwin(deps, site))
	}

	s := &Supervisor{
		cfg:      cfg,
		logger:   logger,
		sink:     sink,
		registry: reg,
		streams:  streams,
		tasks:    make(map[string][]*task),
	}
	s.engine = anomaly.New(cfg, sink, logger, targets)

	if cfg.Control.Enabled {
		h, err := control.New(cfg, sink, logger, s, s.engine)
		if err != nil {
			return nil, err
		}
		s.handler = h
	}
	return s, nil
}

// Run launches every enabled stream, the anomaly loop, the control drain loop
// and the metrics loop, then blocks until the context is cancelled. On the
// way out it cancels every task, awaits them and closes the sink.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	for _, slug := range slugOrder {
		instances := s.streams[slug]
		if len(instances) == 0 || !instances[0].Enabled() {
			continue
		}
		s.startLocked(slug)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	if s.cfg.Anomaly.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.engine.Run(ctx)
		}()
	}
	if s.handler != nil {
		if err := s.handler.Subscribe(); err != nil {
			s.logger.Error("control subscribe failed", "error", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handler.Run(ctx)
		}()
	}
	if s.cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(s.cfg.Metrics.Listen); err != nil {
				s.logger.Error("metrics listener failed", "error", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.metricsLoop(ctx)
	}()

	s.logger.Info("simulator running",
		"sites", len(s.cfg.Plant.Sites),
		"streams", len(s.streams),
		"transport", s.cfg.Transport.Type)

	<-ctx.Done()

	s.mu.Lock()
	for slug := range s.tasks {
		s.stopLocked(slug)
	}
	s.mu.Unlock()

	wg.Wait()
	s.engine.Wait()
	if err := s.sink.Close(); err != nil {
		s.logger.Error("sink close failed", "error", err)
	}
	s.logger.Info("simulator stopped")
	return ctx.Err()
}

// Enable starts the named stream's tasks, one per site. Idempotent: a slug
// that is already live keeps its existing tasks.
func (s *Supervisor) Enable(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[slug]; !ok {
		return fmt.Errorf("unknown stream %q", slug)
	}
	if s.base == nil {
		return fmt.Errorf("supervisor is not running")
	}
	s.startLocked(slug)
	return nil
}

// Disable cancels and awaits the named stream's tasks. Idempotent: disabling
// a stopped stream is a no-op.
func (s *Supervisor) Disable(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[slug]; !ok {
		return fmt.Errorf("unknown stream %q", slug)
	}
	s.stopLocked(slug)
	return nil
}

// Streams reports every stream with its sites, config flag and live state.
func (s *Supervisor) Streams() []control.StreamInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []control.StreamInfo
	for _, slug := range slugOrder {
		instances, ok := s.streams[slug]
		if !ok {
			continue
		}
		info := control.StreamInfo{
			Slug:    slug,
			Running: len(s.tasks[slug]) > 0,
		}
		if len(instances) > 0 {
			info.Enabled = instances[0].Enabled()
		}
		for _, st := range instances {
			info.Sites = append(info.Sites, st.Site())
		}
		out = append(out, info)
	}
	return out
}

func (s *Supervisor) startLocked(slug string) {
	if len(s.tasks[slug]) > 0 {
		return
	}
	var ts []*task
	for _, st := range s.streams[slug] {
		ctx, cancel := context.WithCancel(s.base)
		done := make(chan struct{})
		go s.runStream(ctx, st, done)
		ts = append(ts, &task{cancel: cancel, done: done})
		metrics.ActiveStreams.Inc()
	}
	s.tasks[slug] = ts
	s.logger.Info("stream started", "stream", slug, "tasks", len(ts))
}

func (s *Supervisor) stopLocked(slug string) {
	ts := s.tasks[slug]
	if len(ts) == 0 {
		return
	}
	for _, t := range ts {
		t.cancel()
		<-t.done
		metrics.ActiveStreams.Dec()
	}
	delete(s.tasks, slug)
	s.logger.Info("stream stopped", "stream", slug)
}

// runStream isolates one stream instance: a panic ends that task only,
// sibling streams keep running.
func (s *Supervisor) runStream(ctx context.Context, st plantsim.Stream, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			metrics.StreamRestarts.WithLabelValues(st.Slug()).Inc()
			s.logger.Error("stream panicked", "stream", st.Slug(), "site", st.Site(), "panic", r)
		}
	}()
	if err := st.Run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("stream exited", "stream", st.Slug(), "site", st.Site(), "error", err)
	}
}

// metricsLoop periodically logs a liveness summary and pings the sink so a
// dead transport shows up in the logs even when nothing publishes.
func (s *Supervisor) metricsLoop(ctx context.Context) {
	sec := s.cfg.Metrics.IntervalSec
	if sec <= 0 {
		sec = 60
	}
	ticker := time.NewTicker(time.Duration(sec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			running := len(s.tasks)
			s.mu.Unlock()
			if err := s.sink.Ping(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("transport unreachable", "error", err)
			}
			s.logger.Info("heartbeat", "streamsRunning", running, "machines", len(s.registry.MachineStates()))
		}
	}
}

func hierarchyOf(p config.PlantConfig) topic.Hierarchy {
	h := topic.Hierarchy{Enterprise: p.Enterprise}
	for _, sc := range p.Sites {
		site := topic.Site{Name: sc.Name}
		for _, a := range sc.Areas {
			area := topic.Area{Name: a.Name}
			for _, l := range a.Lines {
				line := topic.Line{Name: l.Name}
				for _, c := range l.Cells {
					line.Cells = append(line.Cells, topic.Cell{Name: c.Name, Equipment: c.Equipment})
				}
				area.Lines = append(area.Lines, line)
			}
			site.Areas = append(site.Areas, area)
		}
		h.Sites = append(h.Sites, site)
	}
	return h
}
