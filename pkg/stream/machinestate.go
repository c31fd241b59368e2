package stream

import (
	"context"
	"math/rand"

	"github.com/user/plantsim/internal/config"
	"github.com/user/plantsim/pkg/registry"
	"github.com/user/plantsim/pkg/topic"
	"github.com/user/plantsim/pkg/util"
)

// MachineState runs a small state machine per equipment and is the only
// writer of the registry's machine records. Error and maintenance excursions
// always return to running before the next roll.
type MachineState struct {
	Base
	machines []machine
	current  map[string]string
}

type machineStatePayload struct {
	Timestamp string `json:"timestamp"`
	Site      string `json:"site"`
	Line      string `json:"line"`
	Equipment string `json:"equipment"`
	State     string `json:"state"`
	Previous  string `json:"previous"`
	ErrorCode string `json:"errorCode,omitempty"`
	Batch     string `json:"batch,omitempty"`
}

func NewMachineState(deps Deps, site config.SiteConfig) *MachineState {
	s := &MachineState{
		Base:     newBase("machine-state", site.Name, deps),
		machines: machines(site),
		current:  make(map[string]string),
	}
	for _, m := range s.machines {
		s.current[m.id] = "running"
	}
	return s
}

func (s *MachineState) Enabled() bool {
	return s.deps.Cfg.Live().MachineState.Enabled
}

func (s *MachineState) Run(ctx context.Context) error {
	for {
		live := s.deps.Cfg.Live().MachineState
		o := s.snapshot()

		errorP := overrideFloat(o, "errorProbability", live.ErrorProbability)
		maintenanceP := overrideFloat(o, "maintenanceProbability", live.MaintenanceProbability)

		for _, m := range s.machines {
			next, code := s.roll(m.id, errorP, maintenanceP, live.ErrorCodes)
			prev := s.current[m.id]
			if next == prev {
				continue
			}
			s.current[m.id] = next

			batch, _ := s.deps.Registry.ActiveBatch(m.line)
			s.deps.Registry.UpdateMachineState(m.id, next, code, m.line, batch)

			s.publish(ctx, machineStatePayload{
				Timestamp: util.Timestamp(),
				Site:      s.site,
				Line:      m.line,
				Equipment: m.id,
				State:     next,
				Previous:  prev,
				ErrorCode: code,
				Batch:     batch,
			}, topic.EntityContext{Site: s.site, Line: m.line, Equipment: m.id})
		}

		dwell := util.RandFloat(live.DwellSec.Min(), live.DwellSec.Max())
		if !sleepTick(ctx, secondsDuration(dwell)) {
			return ctx.Err()
		}
	}
}

// roll picks the next state. Machines already in an excursion state come back
// to running first so error and maintenance windows span exactly one dwell.
func (s *MachineState) roll(eqp string, errorP, maintenanceP float64, codes []string) (state, code string) {
	switch s.current[eqp] {
	case registry.StateMaintenance, "error":
		return "running", ""
	}

	r := rand.Float64()
	switch {
	case r < errorP:
		if len(codes) > 0 {
			code = util.Choice(codes)
		}
		return "error", code
	case r < errorP+maintenanceP:
		return registry.StateMaintenance, ""
	case rand.Float64() < 0.2:
		return "idle", ""
	default:
		return "running", ""
	}
}
