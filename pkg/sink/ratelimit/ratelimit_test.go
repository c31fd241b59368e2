package ratelimit

import (
	"context"
	"testing"

	"github.com/user/plantsim"
)

type countingSink struct {
	published int
	lastTopic string
}

func (c *countingSink) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	c.published++
	c.lastTopic = topic
	return nil
}

func (c *countingSink) Subscribe(topic string, handler plantsim.Handler) error { return nil }
func (c *countingSink) Ping(ctx context.Context) error                         { return nil }
func (c *countingSink) Close() error                                           { return nil }

func TestPassthrough(t *testing.T) {
	inner := &countingSink{}
	s := Wrap(inner, 1000, 1000)

	for i := 0; i < 5; i++ {
		if err := s.Publish(context.Background(), "a/b", []byte("x"), 1, false); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if inner.published != 5 {
		t.Fatalf("expected 5 publishes, got %d", inner.published)
	}
	if inner.lastTopic != "a/b" {
		t.Fatalf("topic not forwarded, got %q", inner.lastTopic)
	}
}

func TestWaitRespectsContext(t *testing.T) {
	inner := &countingSink{}
	s := Wrap(inner, 0.001, 1)

	// The first publish consumes the only token.
	if err := s.Publish(context.Background(), "a/b", []byte("x"), 0, false); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Publish(ctx, "a/b", []byte("x"), 0, false); err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if inner.published != 1 {
		t.Fatalf("expected 1 publish, got %d", inner.published)
	}
}
