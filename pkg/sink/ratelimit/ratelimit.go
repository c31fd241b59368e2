package ratelimit

import (
	"context"

	"github.com/user/plantsim"
	"golang.org/x/time/rate"
)

// Sink wraps another sink and holds publishes under a token bucket so a
// misconfigured interval cannot flood the broker. Subscribe, Ping and
// Close pass straight through.
type Sink struct {
	next    plantsim.Sink
	limiter *rate.Limiter
}

// Wrap applies a limit of mps messages per second with the given burst.
// Non-positive values fall back to 100 mps and burst = mps.
func Wrap(next plantsim.Sink, mps float64, burst int) *Sink {
	if mps <= 0 {
		mps = 100
	}
	if burst <= 0 {
		burst = int(mps)
	}
	return &Sink{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(mps), burst),
	}
}

func (s *Sink) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.next.Publish(ctx, topic, payload, qos, retain)
}

func (s *Sink) Subscribe(topic string, handler plantsim.Handler) error {
	return s.next.Subscribe(topic, handler)
}

func (s *Sink) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *Sink) Close() error {
	return s.next.Close()
}
