package stream

import (
	"context"

	"github.com/user/plantsim/internal/config"
	"github.com/user/plantsim/pkg/topic"
	"github.com/user/plantsim/pkg/util"
)

// Twin mirrors the registry's machine records onto state topics, one
// snapshot per machine per tick. It is a read-only registry consumer; the
// machine-state stream remains the single writer.
type Twin struct {
	Base
	mine map[string]machine
}

type twinPayload struct {
	Timestamp string `json:"timestamp"`
	Site      string `json:"site"`
	Line      string `json:"line"`
	Equipment string `json:"equipment"`
	State     string `json:"state"`
	ErrorCode string `json:"errorCode,omitempty"`
	Batch     string `json:"batch,omitempty"`
	UpdatedAt string `json:"updatedAt"`
}

func NewTwin(deps Deps, site config.SiteConfig) *Twin {
	mine := make(map[string]machine)
	for _, m := range machines(site) {
		mine[m.id] = m
	}
	return &Twin{
		Base: newBase("twin", site.Name, deps),
		mine: mine,
	}
}

func (s *Twin) Enabled() bool {
	return s.deps.Cfg.Live().Twin.Enabled
}

func (s *Twin) Run(ctx context.Context) error {
	for {
		live := s.deps.Cfg.Live().Twin

		for _, rec := range s.deps.Registry.MachineStates() {
			m, ok := s.mine[rec.Equipment]
			if !ok {
				continue
			}
			s.publish(ctx, twinPayload{
				Timestamp: util.Timestamp(),
				Site:      s.site,
				Line:      m.line,
				Equipment: rec.Equipment,
				State:     rec.State,
				ErrorCode: rec.ErrorCode,
				Batch:     rec.Batch,
				UpdatedAt: util.TimestampAt(rec.UpdatedAt),
			}, topic.EntityContext{Site: s.site, Line: m.line, Equipment: rec.Equipment})
		}

		if !sleepTick(ctx, interval(live.IntervalSec)) {
			return ctx.Err()
		}
	}
}
