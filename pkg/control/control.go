package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/user/plantsim"
	"github.com/user/plantsim/internal/config"
	"github.com/user/plantsim/pkg/metrics"
	"github.com/xeipuuv/gojsonschema"
)

// envelopeSchema validates the command envelope before any field is read.
// Action-specific required fields are checked per action so the error can say
// which field is missing.
const envelopeSchema = `{
	"type": "object",
	"required": ["action"],
	"properties": {
		"action": {"type": "string", "minLength": 1},
		"stream": {"type": "string"},
		"intervalSec": {"type": "integer", "minimum": 0},
		"scenario": {"type": "string"},
		"path": {"type": "string"}
	}
}`

var validActions = []string{
	"status", "list-streams", "list-anomalies",
	"enable", "disable", "set-interval", "trigger-anomaly", "set",
}

// StreamInfo is one row of the list-streams reply.
type StreamInfo struct {
	Slug    string   `json:"slug"`
	Sites   []string `json:"sites"`
	Enabled bool     `json:"enabled"`
	Running bool     `json:"running"`
}

// TaskManager is the supervisor surface the control plane drives. Enable and
// Disable are idempotent on the live task, not just the config flag.
type TaskManager interface {
	Enable(slug string) error
	Disable(slug string) error
	Streams() []StreamInfo
}

// Triggerer is the anomaly engine surface.
type Triggerer interface {
	Trigger(ctx context.Context, name string) error
	Scenarios() []config.ScenarioConfig
}

// Handler is the control plane. The transport callback only enqueues the raw
// message; a single drain goroutine validates and applies commands serially,
// so no command ever runs concurrently with another.
type Handler struct {
	cfg       *config.Config
	sink      plantsim.Sink
	logger    plantsim.Logger
	tasks     TaskManager
	anomalies Triggerer

	schema  *gojsonschema.Schema
	queue   chan []byte
	started time.Time
}

func New(cfg *config.Config, sink plantsim.Sink, logger plantsim.Logger, tasks TaskManager, anomalies Triggerer) (*Handler, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
	if err != nil {
		return nil, fmt.Errorf("control: schema compile failed: %w", err)
	}

	size := cfg.Control.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Handler{
		cfg:       cfg,
		sink:      sink,
		logger:    logger,
		tasks:     tasks,
		anomalies: anomalies,
		schema:    schema,
		queue:     make(chan []byte, size),
		started:   time.Now(),
	}, nil
}

// Subscribe attaches the enqueue-only callback to the command topic. The
// callback runs on the transport's own goroutine and must return immediately;
// a full queue drops the command with a log line rather than blocking.
func (h *Handler) Subscribe() error {
	return h.sink.Subscribe(h.cfg.Control.CommandTopic, func(topic string, payload []byte) {
		msg := append([]byte(nil), payload...)
		select {
		case h.queue <- msg:
		default:
			metrics.CommandsDropped.Inc()
			h.logger.Warn("command queue full, dropping command", "topic", topic)
		}
	})
}

// Run drains the queue serially until the context is cancelled. Every command
// produces exactly one reply on the status topic.
func (h *Handler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw := <-h.queue:
			h.handle(ctx, raw)
		}
	}
}

func (h *Handler) handle(ctx context.Context, raw []byte) {
	reply, action := h.dispatch(ctx, raw)
	status, _ := reply["status"].(string)
	metrics.CommandsHandled.WithLabelValues(action, status).Inc()
	h.reply(ctx, reply)
}

// dispatch applies one command and builds its reply. Malformed input never
// kills the handler; the reply echoes the offending command.
func (h *Handler) dispatch(ctx context.Context, raw []byte) (map[string]any, string) {
	result, err := h.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errorReply("", raw, fmt.Sprintf("invalid JSON: %v", err)), "invalid"
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errorReply("", raw, strings.Join(msgs, "; ")), "invalid"
	}

	action := gjson.GetBytes(raw, "action").String()
	switch action {
	case "status":
		return h.status(action), action
	case "list-streams":
		return okReply(action, map[string]any{"streams": h.tasks.Streams()}), action
	case "list-anomalies":
		return okReply(action, map[string]any{"anomalies": h.listAnomalies()}), action
	case "enable", "disable":
		return h.toggle(action, raw), action
	case "set-interval":
		return h.setInterval(action, raw), action
	case "trigger-anomaly":
		return h.trigger(ctx, action, raw), action
	case "set":
		return h.set(action, raw), action
	default:
		sorted := append([]string(nil), validActions...)
		sort.Strings(sorted)
		return errorReply(action, raw, fmt.Sprintf("unknown action %q, valid actions: %s", action, strings.Join(sorted, ", "))), "unknown"
	}
}

func (h *Handler) status(action string) map[string]any {
	running := 0
	streams := h.tasks.Streams()
	for _, s := range streams {
		if s.Running {
			running++
		}
	}
	return okReply(action, map[string]any{
		"uptimeSec":      int64(time.Since(h.started).Seconds()),
		"streams":        len(streams),
		"streamsRunning": running,
		"scenarios":      len(h.anomalies.Scenarios()),
	})
}

func (h *Handler) listAnomalies() []map[string]any {
	var out []map[string]any
	for _, sc := range h.anomalies.Scenarios() {
		out = append(out, map[string]any{
			"name":        sc.Name,
			"description": sc.Description,
			"target":      sc.Target,
			"durationSec": sc.DurationSec,
			"enabled":     sc.Enabled,
		})
	}
	return out
}

// toggle flips both the config flag and the live task; the task registry is
// authoritative so repeating a command is harmless.
func (h *Handler) toggle(action string, raw []byte) map[string]any {
	slug := gjson.GetBytes(raw, "stream").String()
	if slug == "" {
		return errorReply(action, raw, "stream is required")
	}

	on := action == "enable"
	if err := h.cfg.SetEnabled(slug, on); err != nil {
		return errorReply(action, raw, err.Error())
	}
	var err error
	if on {
		err = h.tasks.Enable(slug)
	} else {
		err = h.tasks.Disable(slug)
	}
	if err != nil {
		return errorReply(action, raw, err.Error())
	}
	return okReply(action, map[string]any{"stream": slug, "enabled": on})
}

func (h *Handler) setInterval(action string, raw []byte) map[string]any {
	slug := gjson.GetBytes(raw, "stream").String()
	if slug == "" {
		return errorReply(action, raw, "stream is required")
	}
	sec := gjson.GetBytes(raw, "intervalSec")
	if !sec.Exists() {
		return errorReply(action, raw, "intervalSec is required")
	}

	if err := h.cfg.SetInterval(slug, int(sec.Int())); err != nil {
		return errorReply(action, raw, err.Error())
	}
	return okReply(action, map[string]any{"stream": slug, "intervalSec": sec.Int()})
}

func (h *Handler) trigger(ctx context.Context, action string, raw []byte) map[string]any {
	name := gjson.GetBytes(raw, "scenario").String()
	if name == "" {
		return errorReply(action, raw, "scenario is required")
	}
	if err := h.anomalies.Trigger(ctx, name); err != nil {
		return errorReply(action, raw, err.Error())
	}
	return okReply(action, map[string]any{"scenario": name})
}

func (h *Handler) set(action string, raw []byte) map[string]any {
	path := gjson.GetBytes(raw, "path").String()
	if path == "" {
		return errorReply(action, raw, "path is required")
	}
	value := gjson.GetBytes(raw, "value").Value()

	if err := h.cfg.Set(path, value); err != nil {
		return errorReply(action, raw, err.Error())
	}
	return okReply(action, map[string]any{"path": path, "value": value})
}

func (h *Handler) reply(ctx context.Context, reply map[string]any) {
	data, err := json.Marshal(reply)
	if err != nil {
		h.logger.Error("reply marshal failed", "error", err)
		return
	}
	topic := h.cfg.Control.StatusTopic
	if err := h.sink.Publish(ctx, topic, data, byte(h.cfg.Transport.QoS), false); err != nil && ctx.Err() == nil {
		h.logger.Error("reply publish failed", "topic", topic, "error", err)
	}
}

func okReply(action string, fields map[string]any) map[string]any {
	reply := map[string]any{
		"Timestamp": time.Now().UTC().Format(time.RFC3339),
		"status":    "ok",
		"action":    action,
	}
	for k, v := range fields {
		reply[k] = v
	}
	return reply
}

// errorReply echoes the original command so the operator can see what failed.
func errorReply(action string, raw []byte, msg string) map[string]any {
	reply := map[string]any{
		"Timestamp": time.Now().UTC().Format(time.RFC3339),
		"status":    "error",
		"error":     msg,
	}
	if action != "" {
		reply["action"] = action
	}
	if json.Valid(raw) {
		reply["command"] = json.RawMessage(raw)
	} else {
		reply["command"] = string(raw)
	}
	return reply
}
