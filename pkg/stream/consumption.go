package stream

import (
	"context"
	"fmt"

	"github.com/user/plantsim/internal/config"
	"github.com/user/plantsim/pkg/topic"
	"github.com/user/plantsim/pkg/util"
)

// Consumption emits material-consumption events per batch segment and builds
// the registry's consumption graph as it goes. Lines without an active batch
// skip the tick; the batch stream drives batch creation.
type Consumption struct {
	Base
	lines     []string
	materials []string
}

type consumptionPayload struct {
	Timestamp string  `json:"timestamp"`
	Site      string  `json:"site"`
	Line      string  `json:"line"`
	Batch     string  `json:"batch"`
	Segment   string  `json:"segment"`
	Material  string  `json:"material"`
	Quantity  float64 `json:"quantity"`
	Unit      string  `json:"unit"`
}

func NewConsumption(deps Deps, site config.SiteConfig, materials []string) *Consumption {
	return &Consumption{
		Base:      newBase("material-consumption", site.Name, deps),
		lines:     lines(site),
		materials: materials,
	}
}

func (s *Consumption) Enabled() bool {
	return s.deps.Cfg.Live().Consumption.Enabled
}

func (s *Consumption) Run(ctx context.Context) error {
	for {
		live := s.deps.Cfg.Live().Consumption
		o := s.snapshot()

		quantity := overrideRange(o, "quantityRange", live.QuantityRange)
		segments := live.SegmentsPerBatch
		if segments <= 0 {
			segments = 1
		}
		perSegment := live.MaterialsPerSegment
		if perSegment <= 0 {
			perSegment = 1
		}

		for _, line := range s.lines {
			batch, ok := s.deps.Registry.ActiveBatch(line)
			if !ok || len(s.materials) == 0 {
				continue
			}
			segment := fmt.Sprintf("%s-SEG-%d", batch, util.RandInt(1, segments))
			for i := 0; i < perSegment; i++ {
				material := util.Choice(s.materials)
				s.deps.Registry.RecordConsumption(batch, segment, material)
				s.publish(ctx, consumptionPayload{
					Timestamp: util.Timestamp(),
					Site:      s.site,
					Line:      line,
					Batch:     batch,
					Segment:   segment,
					Material:  material,
					Quantity:  util.RandFloat(quantity.Min(), quantity.Max()),
					Unit:      "kg",
				}, topic.EntityContext{Site: s.site, Line: line})
			}
		}

		if !sleepTick(ctx, interval(live.IntervalSec)) {
			return ctx.Err()
		}
	}
}
