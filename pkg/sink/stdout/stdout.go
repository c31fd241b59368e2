package stdout

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/user/plantsim"
)

// Sink prints every payload to stdout. Subscriptions are served by a
// local loopback: publishing to a subscribed topic invokes the handler
// in-process, which keeps the control plane usable without a broker.
type Sink struct {
	logger plantsim.Logger

	mu   sync.RWMutex
	subs map[string]plantsim.Handler
}

func New() *Sink {
	return &Sink{subs: make(map[string]plantsim.Handler)}
}

func (s *Sink) SetLogger(l plantsim.Logger) {
	s.logger = l
}

func (s *Sink) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	fmt.Printf("%s %s\n", topic, payload)

	s.mu.RLock()
	handler := s.matchLocked(topic)
	s.mu.RUnlock()
	if handler != nil {
		handler(topic, payload)
	}
	return nil
}

func (s *Sink) Subscribe(topic string, handler plantsim.Handler) error {
	s.mu.Lock()
	s.subs[topic] = handler
	s.mu.Unlock()
	if s.logger != nil {
		s.logger.Debug("stdout sink subscribed", "topic", topic)
	}
	return nil
}

// matchLocked supports exact topics plus single-level trailing wildcards
// in the MQTT style, enough for loopback command routing.
func (s *Sink) matchLocked(topic string) plantsim.Handler {
	if h, ok := s.subs[topic]; ok {
		return h
	}
	for pattern, h := range s.subs {
		if strings.HasSuffix(pattern, "/#") && strings.HasPrefix(topic, strings.TrimSuffix(pattern, "#")) {
			return h
		}
	}
	return nil
}

func (s *Sink) Ping(ctx context.Context) error {
	return nil
}

func (s *Sink) Close() error {
	return nil
}
