package proxy

import "github.com/prometheus/client_golang/prometheus"

var (
	restartsTriggered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presetd",
		Subsystem: "proxy",
		Name:      "restarts_triggered_total",
		Help:      "Restarts triggered by incompatible presets on proxied requests",
	})

	connectionRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presetd",
		Subsystem: "proxy",
		Name:      "connection_retries_total",
		Help:      "Connection-level retries against the engine endpoint",
	})

	evictionRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presetd",
		Subsystem: "proxy",
		Name:      "eviction_retries_total",
		Help:      "Requests retried after evicting other resident models",
	})

	sanitizeRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presetd",
		Subsystem: "proxy",
		Name:      "sanitize_retries_total",
		Help:      "Requests retried after chat-template message sanitization",
	})

	upstreamErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presetd",
		Subsystem: "proxy",
		Name:      "upstream_errors_total",
		Help:      "Terminal upstream error responses passed through to clients",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(restartsTriggered, connectionRetries, evictionRetries, sanitizeRetries, upstreamErrors)
}
