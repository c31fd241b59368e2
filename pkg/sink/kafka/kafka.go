package kafka

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/user/plantsim"
)

// Sink implements plantsim.Sink on Kafka. It also covers Azure Event Hubs,
// which exposes a Kafka endpoint with SASL PLAIN over TLS. Topic slashes
// are mapped to dots because Kafka forbids them in topic names.
type Sink struct {
	writer    *kafka.Writer
	transport *kafka.Transport
	brokers   []string
	groupID   string

	mu      sync.Mutex
	readers []*kafka.Reader
	cancel  []context.CancelFunc
}

// New creates a Kafka sink. Expected config keys:
// - brokers: comma separated host:port list
// - username, password (optional, enables SASL PLAIN over TLS)
// - group_id (optional, consumer group for subscriptions)
func New(cfg map[string]string) (*Sink, error) {
	brokers := splitBrokers(cfg["brokers"])
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers is required")
	}

	var transport *kafka.Transport
	if u := strings.TrimSpace(cfg["username"]); u != "" {
		transport = &kafka.Transport{
			SASL: plain.Mechanism{
				Username: u,
				Password: cfg["password"],
			},
			TLS: &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}

	return &Sink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			Transport:              transport,
		},
		transport: transport,
		brokers:   brokers,
		groupID:   strings.TrimSpace(cfg["group_id"]),
	}, nil
}

func splitBrokers(v string) []string {
	var out []string
	for _, b := range strings.Split(v, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func topicName(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

func (s *Sink) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	err := s.writer.WriteMessages(ctx, kafka.Message{
		Topic: topicName(topic),
		Key:   []byte(topic),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("kafka: write failed: %w", err)
	}
	return nil
}

func (s *Sink) Subscribe(topic string, handler plantsim.Handler) error {
	dialer := kafka.DefaultDialer
	if s.transport != nil {
		dialer = &kafka.Dialer{
			Timeout:       10 * time.Second,
			SASLMechanism: s.transport.SASL,
			TLS:           &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: s.brokers,
		Topic:   topicName(topic),
		GroupID: s.groupID,
		Dialer:  dialer,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.readers = append(s.readers, r)
	s.cancel = append(s.cancel, cancel)
	s.mu.Unlock()

	go func() {
		orig := topic
		for {
			m, err := r.ReadMessage(ctx)
			if err != nil {
				return
			}
			handler(orig, m.Value)
		}
	}()
	return nil
}

func (s *Sink) Ping(ctx context.Context) error {
	client := &kafka.Client{
		Addr:      s.writer.Addr,
		Transport: s.transport,
		Timeout:   10 * time.Second,
	}
	_, err := client.Metadata(ctx, &kafka.MetadataRequest{})
	if err != nil {
		return fmt.Errorf("kafka: ping failed: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	for _, cancel := range s.cancel {
		cancel()
	}
	for _, r := range s.readers {
		r.Close()
	}
	s.readers = nil
	s.cancel = nil
	s.mu.Unlock()
	return s.writer.Close()
}
