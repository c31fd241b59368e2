package stream

import (
	"context"
	"fmt"

	"github.com/user/plantsim/internal/config"
	"github.com/user/plantsim/pkg/topic"
	"github.com/user/plantsim/pkg/util"
)

// Batch walks each line through the batch lifecycle: created, started,
// completed. The active batch id is shared through the registry so the
// production, consumption and machine-state streams can tag their payloads.
type Batch struct {
	Base
	lines []string
}

type batchPayload struct {
	Timestamp string `json:"timestamp"`
	Site      string `json:"site"`
	Line      string `json:"line"`
	Batch     string `json:"batch"`
	Event     string `json:"event"`
	Product   string `json:"product"`
}

func NewBatch(deps Deps, site config.SiteConfig) *Batch {
	return &Batch{
		Base:  newBase("batch", site.Name, deps),
		lines: lines(site),
	}
}

func (s *Batch) Enabled() bool {
	return s.deps.Cfg.Live().Batch.Enabled
}

func (s *Batch) Run(ctx context.Context) error {
	phase := make(map[string]string)
	batch := make(map[string]string)
	product := make(map[string]string)

	for {
		live := s.deps.Cfg.Live().Batch

		for _, line := range s.lines {
			var event string
			switch phase[line] {
			case "", "completed":
				batch[line] = fmt.Sprintf("BAT-%s", util.RandDigits(6))
				product[line] = fmt.Sprintf("PRD-%s", util.RandDigits(3))
				event = "created"
			case "created":
				event = "started"
				s.deps.Registry.SetActiveBatch(line, batch[line])
			case "started":
				event = "completed"
			}
			phase[line] = event

			s.publish(ctx, batchPayload{
				Timestamp: util.Timestamp(),
				Site:      s.site,
				Line:      line,
				Batch:     batch[line],
				Event:     event,
				Product:   product[line],
			}, topic.EntityContext{Site: s.site, Line: line})
		}

		dwell := util.RandFloat(live.DwellSec.Min(), live.DwellSec.Max())
		if !sleepTick(ctx, secondsDuration(dwell)) {
			return ctx.Err()
		}
	}
}
