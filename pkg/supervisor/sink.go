package supervisor

import (
	"fmt"

	"github.com/user/plantsim"
	"github.com/user/plantsim/internal/config"
	"github.com/user/plantsim/pkg/sink/kafka"
	"github.com/user/plantsim/pkg/sink/mqtt"
	"github.com/user/plantsim/pkg/sink/nats"
	"github.com/user/plantsim/pkg/sink/ratelimit"
	"github.com/user/plantsim/pkg/sink/stdout"
)

// BuildSink constructs the transport from configuration. A configured publish
// rate wraps the sink in a token-bucket limiter.
func BuildSink(cfg *config.Config, logger plantsim.Logger) (plantsim.Sink, error) {
	var (
		s   plantsim.Sink
		err error
	)
	switch cfg.Transport.Type {
	case "mqtt":
		s, err = mqtt.New(cfg.Transport.Settings)
	case "kafka", "eventhub":
		s, err = kafka.New(cfg.Transport.Settings)
	case "nats":
		s, err = nats.New(cfg.Transport.Settings)
	case "stdout", "":
		out := stdout.New()
		out.SetLogger(logger)
		s = out
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Transport.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("transport %q: %w", cfg.Transport.Type, err)
	}

	if cfg.Transport.PublishRate > 0 {
		s = ratelimit.Wrap(s, cfg.Transport.PublishRate, cfg.Transport.PublishBurst)
	}
	return s, nil
}
