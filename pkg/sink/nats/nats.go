package nats

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/user/plantsim"
)

// Sink implements plantsim.Sink on NATS JetStream. Topic slashes are
// mapped to subject dots on the way out and back.
type Sink struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// New connects to a NATS server. Expected config keys:
// - url
// - username, password or token (optional)
func New(cfg map[string]string) (*Sink, error) {
	url := strings.TrimSpace(cfg["url"])
	if url == "" {
		return nil, fmt.Errorf("nats: url is required")
	}

	opts := []nats.Option{}
	if token := strings.TrimSpace(cfg["token"]); token != "" {
		opts = append(opts, nats.Token(token))
	} else if u := strings.TrimSpace(cfg["username"]); u != "" {
		opts = append(opts, nats.UserInfo(u, cfg["password"]))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats: connect failed: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats: jetstream context failed: %w", err)
	}

	return &Sink{nc: nc, js: js}, nil
}

func subject(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

func topicOf(subj string) string {
	return strings.ReplaceAll(subj, ".", "/")
}

func (s *Sink) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	_, err := s.js.Publish(subject(topic), payload, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("nats: publish failed: %w", err)
	}
	return nil
}

func (s *Sink) Subscribe(topic string, handler plantsim.Handler) error {
	_, err := s.nc.Subscribe(subject(topic), func(m *nats.Msg) {
		handler(topicOf(m.Subject), m.Data)
	})
	if err != nil {
		return fmt.Errorf("nats: subscribe failed for %s: %w", topic, err)
	}
	return nil
}

func (s *Sink) Ping(ctx context.Context) error {
	if s.nc == nil {
		return fmt.Errorf("nats: connection is nil")
	}
	if !s.nc.IsConnected() {
		return fmt.Errorf("nats: not connected")
	}
	return nil
}

func (s *Sink) Close() error {
	s.nc.Close()
	return nil
}
