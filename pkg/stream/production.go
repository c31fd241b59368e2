package stream

import (
	"context"
	"time"

	"github.com/user/plantsim/internal/config"
	"github.com/user/plantsim/pkg/topic"
	"github.com/user/plantsim/pkg/util"
)

// Production emits per-line piece counts. Weekend ticks run at reduced volume
// to keep the weekly profile plausible.
type Production struct {
	Base
	lines []string
}

type productionPayload struct {
	Timestamp  string `json:"timestamp"`
	Site       string `json:"site"`
	Line       string `json:"line"`
	GoodCount  int    `json:"goodCount"`
	ScrapCount int    `json:"scrapCount"`
	Shift      string `json:"shift"`
	Batch      string `json:"batch,omitempty"`
}

func NewProduction(deps Deps, site config.SiteConfig) *Production {
	return &Production{
		Base:  newBase("production", site.Name, deps),
		lines: lines(site),
	}
}

func (s *Production) Enabled() bool {
	return s.deps.Cfg.Live().Production.Enabled
}

func (s *Production) Run(ctx context.Context) error {
	for {
		live := s.deps.Cfg.Live().Production
		o := s.snapshot()

		scrap := overrideRange(o, "scrapRange", live.ScrapRange)
		good := live.GoodRange
		now := time.Now()
		if util.IsWeekend(now) {
			good = config.Range{good.Min() / 2, good.Max() / 2}
		}

		for _, line := range s.lines {
			batch, _ := s.deps.Registry.ActiveBatch(line)
			s.publish(ctx, productionPayload{
				Timestamp:  util.Timestamp(),
				Site:       s.site,
				Line:       line,
				GoodCount:  util.RandInt(int(good.Min()), int(good.Max())),
				ScrapCount: util.RandInt(int(scrap.Min()), int(scrap.Max())),
				Shift:      util.Shift(now),
				Batch:      batch,
			}, topic.EntityContext{Site: s.site, Line: line})
		}

		if !sleepTick(ctx, interval(live.IntervalSec)) {
			return ctx.Err()
		}
	}
}
