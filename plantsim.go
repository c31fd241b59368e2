package plantsim

import "context"

// Category classifies a stream for topic derivation.
type Category string

const (
	CategoryTelemetry Category = "telemetry"
	CategoryEvents    Category = "events"
	CategoryState     Category = "state"
)

// Overrides substitutes tunable parameters (numeric ranges, probabilities) on a
// stream for the duration of an anomaly scenario. Keys match the stream's config
// field names in lowerCamel form, e.g. "energyRange": [900, 901].
type Overrides map[string]any

// Sink is the transport the simulator publishes through. MQTT-, Kafka- and
// NATS-backed implementations are interchangeable.
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error
	Subscribe(topic string, handler Handler) error
	Ping(ctx context.Context) error
	Close() error
}

// Handler processes a raw inbound transport message. It is invoked on the
// transport client's own goroutine and must only hand the message off, never
// touch simulator state directly.
type Handler func(topic string, payload []byte)

// Stream is one independent simulated telemetry or event source with its own
// publish cadence. Run blocks until the context is cancelled.
type Stream interface {
	Slug() string
	Site() string
	Enabled() bool
	Run(ctx context.Context) error
}

// Overridable is implemented by streams whose tunable parameters can be
// replaced by the anomaly engine. Overrides take effect on the next tick,
// never mid-tick.
type Overridable interface {
	ApplyOverrides(o Overrides)
	ClearOverrides()
}

// Logger defines the interface for logging in plantsim.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
