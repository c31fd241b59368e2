package stream

import (
	"context"
	"time"

	"github.com/user/plantsim/internal/config"
	"github.com/user/plantsim/pkg/topic"
	"github.com/user/plantsim/pkg/util"
)

// Equipment emits per-machine telemetry: energy draw, temperature, vibration
// and cycle time. Machines in maintenance stay quiet for the tick.
type Equipment struct {
	Base
	machines []machine
}

type equipmentPayload struct {
	Timestamp      string  `json:"timestamp"`
	Site           string  `json:"site"`
	Line           string  `json:"line"`
	Equipment      string  `json:"equipment"`
	EnergyKw       float64 `json:"energyKw"`
	TemperatureC   float64 `json:"temperatureC"`
	VibrationMmSec float64 `json:"vibrationMmSec"`
	CycleSec       float64 `json:"cycleSec"`
	Shift          string  `json:"shift"`
}

func NewEquipment(deps Deps, site config.SiteConfig) *Equipment {
	return &Equipment{
		Base:     newBase("equipment", site.Name, deps),
		machines: machines(site),
	}
}

func (s *Equipment) Enabled() bool {
	return s.deps.Cfg.Live().Equipment.Enabled
}

func (s *Equipment) Run(ctx context.Context) error {
	for {
		live := s.deps.Cfg.Live().Equipment
		o := s.snapshot()

		energy := overrideRange(o, "energyRange", live.EnergyRange)
		temperature := overrideRange(o, "temperatureRange", live.TemperatureRange)
		vibration := overrideRange(o, "vibrationRange", live.VibrationRange)

		for _, m := range s.machines {
			if s.deps.Registry.InMaintenance(m.id) {
				continue
			}
			s.publish(ctx, equipmentPayload{
				Timestamp:      util.Timestamp(),
				Site:           s.site,
				Line:           m.line,
				Equipment:      m.id,
				EnergyKw:       util.RandFloat(energy.Min(), energy.Max()),
				TemperatureC:   util.RandFloat(temperature.Min(), temperature.Max()),
				VibrationMmSec: util.RandFloat(vibration.Min(), vibration.Max()),
				CycleSec:       util.RandFloat(live.CycleSecRange.Min(), live.CycleSecRange.Max()),
				Shift:          util.Shift(time.Now()),
			}, topic.EntityContext{Site: s.site, Line: m.line, Equipment: m.id})
		}

		if !sleepTick(ctx, interval(live.IntervalSec)) {
			return ctx.Err()
		}
	}
}
