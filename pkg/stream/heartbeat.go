package stream

import (
	"context"
	"time"

	"github.com/user/plantsim/internal/config"
	"github.com/user/plantsim/pkg/topic"
	"github.com/user/plantsim/pkg/util"
)

// Heartbeat publishes a per-site liveness beacon on its own interval field.
type Heartbeat struct {
	Base
	started time.Time
}

type heartbeatPayload struct {
	Timestamp string `json:"timestamp"`
	Site      string `json:"site"`
	Status    string `json:"status"`
	UptimeSec int64  `json:"uptimeSec"`
}

func NewHeartbeat(deps Deps, site config.SiteConfig) *Heartbeat {
	return &Heartbeat{
		Base:    newBase("heartbeat", site.Name, deps),
		started: time.Now(),
	}
}

func (s *Heartbeat) Enabled() bool {
	return s.deps.Cfg.Live().Heartbeat.Enabled
}

func (s *Heartbeat) Run(ctx context.Context) error {
	for {
		live := s.deps.Cfg.Live().Heartbeat

		s.publish(ctx, heartbeatPayload{
			Timestamp: util.Timestamp(),
			Site:      s.site,
			Status:    "alive",
			UptimeSec: int64(time.Since(s.started).Seconds()),
		}, topic.EntityContext{Site: s.site})

		if !sleepTick(ctx, interval(live.HeartbeatIntervalSec)) {
			return ctx.Err()
		}
	}
}
