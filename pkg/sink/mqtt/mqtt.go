package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/user/plantsim"
)

// Sink implements plantsim.Sink for MQTT brokers using Eclipse Paho.
type Sink struct {
	mu     sync.Mutex
	client paho.Client
	opts   *paho.ClientOptions

	subMu sync.Mutex
	subs  map[string]plantsim.Handler
}

// New creates a new MQTT sink. Expected config keys:
// - broker_url (or url)
// - client_id, username, password (optional)
// - clean_session: true|false (default true)
// - keepalive: duration seconds (default 30s)
// - tls_insecure_skip_verify: true|false
func New(cfg map[string]string) (*Sink, error) {
	brokerURL := strings.TrimSpace(cfg["broker_url"])
	if brokerURL == "" {
		brokerURL = strings.TrimSpace(cfg["url"])
	}
	if brokerURL == "" {
		return nil, fmt.Errorf("mqtt: broker_url is required")
	}

	opts := paho.NewClientOptions().AddBroker(brokerURL)
	if cid := strings.TrimSpace(cfg["client_id"]); cid != "" {
		opts.SetClientID(cid)
	} else {
		opts.SetClientID("")
	}
	if u := strings.TrimSpace(cfg["username"]); u != "" {
		opts.SetUsername(u)
		opts.SetPassword(cfg["password"]) // may be empty
	}

	cleanSession := true
	if v := strings.TrimSpace(cfg["clean_session"]); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cleanSession = b
		}
	}
	opts.SetCleanSession(cleanSession)

	keepAlive := 30 * time.Second
	if v := strings.TrimSpace(cfg["keepalive"]); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			keepAlive = d
		} else if n, err := strconv.Atoi(v); err == nil {
			keepAlive = time.Duration(n) * time.Second
		}
	}
	opts.SetKeepAlive(keepAlive)
	opts.SetAutoReconnect(true)

	// TLS if broker scheme is secure
	if strings.HasPrefix(brokerURL, "ssl://") || strings.HasPrefix(brokerURL, "tls://") || strings.HasPrefix(brokerURL, "wss://") {
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if roots, err := x509.SystemCertPool(); err == nil && roots != nil {
			tlsCfg.RootCAs = roots
		}
		if v := strings.TrimSpace(cfg["tls_insecure_skip_verify"]); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				tlsCfg.InsecureSkipVerify = b
			}
		}
		opts.SetTLSConfig(tlsCfg)
	}

	s := &Sink{
		opts: opts,
		subs: make(map[string]plantsim.Handler),
	}
	// Re-establish subscriptions after a reconnect.
	opts.SetOnConnectHandler(func(c paho.Client) {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for topic, handler := range s.subs {
			h := handler
			c.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
				h(m.Topic(), m.Payload())
			})
		}
	})
	return s, nil
}

func (s *Sink) ensureClient(ctx context.Context) (paho.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.client.IsConnectionOpen() {
		return s.client, nil
	}
	c := paho.NewClient(s.opts)
	token := c.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt: connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect failed: %w", err)
	}
	s.client = c
	return c, nil
}

func (s *Sink) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	c, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}

	token := c.Publish(topic, qos, retain, payload)
	// Respect context if provided
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: publish failed: %w", err)
		}
	}
	return nil
}

func (s *Sink) Subscribe(topic string, handler plantsim.Handler) error {
	c, err := s.ensureClient(context.Background())
	if err != nil {
		return err
	}
	s.subMu.Lock()
	s.subs[topic] = handler
	s.subMu.Unlock()

	token := c.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		handler(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(15 * time.Second) {
		return fmt.Errorf("mqtt: subscribe timeout for %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe failed for %s: %w", topic, err)
	}
	return nil
}

func (s *Sink) Ping(ctx context.Context) error {
	_, err := s.ensureClient(ctx)
	return err
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Disconnect(250)
		s.client = nil
	}
	return nil
}
