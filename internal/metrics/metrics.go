// Package metrics exposes Prometheus counters for chat session traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "channelchat").
	Namespace string

	// Subsystem is the metrics subsystem (default: "client").
	Subsystem string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures Config.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Metrics holds the session collectors. A nil *Metrics is valid and records
// nothing.
//
// Collected:
//   - channelchat_client_frames_received_total{type}
//   - channelchat_client_frames_sent_total{type}
//   - channelchat_client_frames_dropped_total{reason}
//   - channelchat_client_connects_total{result}
//   - channelchat_client_disconnects_total{initiator}
type Metrics struct {
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	connects       *prometheus.CounterVec
	disconnects    *prometheus.CounterVec
}

// New registers the collectors. Registering twice on the same registry panics,
// as with any promauto collector.
func New(opts ...Option) *Metrics {
	cfg := Config{
		Namespace: "channelchat",
		Subsystem: "client",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(cfg.Registry)
	return &Metrics{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "frames_received_total",
			Help:      "Inbound frames parsed, by type.",
		}, []string{"type"}),
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "frames_sent_total",
			Help:      "Outbound frames written, by type.",
		}, []string{"type"}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "frames_dropped_total",
			Help:      "Frames discarded in either direction, by reason.",
		}, []string{"reason"}),
		connects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "connects_total",
			Help:      "Connection attempts, by result.",
		}, []string{"result"}),
		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "disconnects_total",
			Help:      "Connection teardowns, by initiator.",
		}, []string{"initiator"}),
	}
}

func (m *Metrics) FrameReceived(typ string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(typ).Inc()
}

func (m *Metrics) FrameSent(typ string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(typ).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

// Connected records a connection attempt; ok selects the result label.
func (m *Metrics) Connected(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.connects.WithLabelValues(result).Inc()
}

// Disconnected records a teardown; local is true when the client closed.
func (m *Metrics) Disconnected(local bool) {
	if m == nil {
		return
	}
	initiator := "remote"
	if local {
		initiator = "local"
	}
	m.disconnects.WithLabelValues(initiator).Inc()
}
