package client

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/channelchat/internal/metrics"
	"github.com/vovakirdan/channelchat/internal/transport"
	"github.com/vovakirdan/channelchat/internal/transport/ws"
)

const (
	// DefaultHeartbeatDelay is the wait before the first heartbeat.
	DefaultHeartbeatDelay = time.Second
	// DefaultHeartbeatPeriod is the interval between heartbeats.
	DefaultHeartbeatPeriod = 10 * time.Second
	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 5 * time.Second
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. Session lines carry a session_id field.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.baseLog = logger
		}
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d transport.Dialer) Option {
	return func(s *Session) {
		if d != nil {
			s.dialer = d
		}
	}
}

// WithClock sets the clock driving the heartbeat.
func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetrics records traffic into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithHeartbeat sets the initial delay and the period of heartbeats.
// Non-positive values keep the defaults.
func WithHeartbeat(delay, period time.Duration) Option {
	return func(s *Session) {
		if delay > 0 {
			s.heartbeatDelay = delay
		}
		if period > 0 {
			s.heartbeatPeriod = period
		}
	}
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

func defaultDialer() transport.Dialer {
	return ws.Dialer{}
}
