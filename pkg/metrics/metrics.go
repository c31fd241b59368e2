package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plantsim_messages_published_total",
		Help: "The total number of payloads published per stream",
	}, []string{"stream", "site"})

	PublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plantsim_publish_errors_total",
		Help: "The total number of failed publishes per stream",
	}, []string{"stream", "site"})

	CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plantsim_commands_handled_total",
		Help: "The total number of control commands handled, by action and outcome",
	}, []string{"action", "status"})

	CommandsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plantsim_commands_dropped_total",
		Help: "The total number of inbound commands dropped because the queue was full",
	})

	AnomaliesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plantsim_anomalies_executed_total",
		Help: "The total number of anomaly scenario executions, by scenario and trigger",
	}, []string{"scenario", "trigger"})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plantsim_active_streams_total",
		Help: "The number of stream tasks currently running",
	})

	StreamRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plantsim_stream_panics_total",
		Help: "The total number of stream tasks terminated by a panic",
	}, []string{"stream"})
)

// Serve exposes /metrics on addr. It blocks until the listener fails,
// so callers run it in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
