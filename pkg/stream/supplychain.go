package stream

import (
	"context"
	"fmt"

	"github.com/user/plantsim/internal/config"
	"github.com/user/plantsim/pkg/topic"
	"github.com/user/plantsim/pkg/util"
)

// SupplyChain emits inbound shipment events. Shipments have no physical plant
// location, so the resolver routes them through the logistics inbound branch.
// Delayed shipments report the batches their material would impact, looked up
// through the registry's consumption graph.
type SupplyChain struct {
	Base
	materials []string
}

type shipmentPayload struct {
	Timestamp       string   `json:"timestamp"`
	Site            string   `json:"site"`
	Shipment        string   `json:"shipment"`
	Material        string   `json:"material"`
	Carrier         string   `json:"carrier"`
	Origin          string   `json:"origin"`
	Status          string   `json:"status"`
	DelayHours      int      `json:"delayHours,omitempty"`
	ImpactedBatches []string `json:"impactedBatches,omitempty"`
}

func NewSupplyChain(deps Deps, site config.SiteConfig, materials []string) *SupplyChain {
	return &SupplyChain{
		Base:      newBase("supply-chain", site.Name, deps),
		materials: materials,
	}
}

func (s *SupplyChain) Enabled() bool {
	return s.deps.Cfg.Live().SupplyChain.Enabled
}

func (s *SupplyChain) Run(ctx context.Context) error {
	for {
		live := s.deps.Cfg.Live().SupplyChain
		o := s.snapshot()

		delayP := overrideFloat(o, "delayProbability", live.DelayProbability)

		if len(s.materials) > 0 {
			material := util.Choice(s.materials)
			shipment := fmt.Sprintf("SHP-%s", util.RandDigits(8))

			p := shipmentPayload{
				Timestamp: util.Timestamp(),
				Site:      s.site,
				Shipment:  shipment,
				Material:  material,
				Status:    "on-time",
			}
			if len(live.Carriers) > 0 {
				p.Carrier = util.Choice(live.Carriers)
			}
			if len(live.Origins) > 0 {
				p.Origin = util.Choice(live.Origins)
			}
			if util.RandFloat(0, 1) < delayP {
				p.Status = "delayed"
				p.DelayHours = util.RandInt(2, 48)
				p.ImpactedBatches = s.deps.Registry.BatchesForMaterials([]string{material})
			}

			s.publish(ctx, p, topic.EntityContext{External: shipment})
		}

		if !sleepTick(ctx, interval(live.IntervalSec)) {
			return ctx.Err()
		}
	}
}
