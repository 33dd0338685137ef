package client

import (
	"time"

	"github.com/benbjohnson/clock"
)

// heartbeat calls beat after delay and then every period until stopped.
type heartbeat struct {
	beat   func()
	period time.Duration
	clock  clock.Clock
	first  *clock.Timer
	stop   chan struct{}
	done   chan struct{}
}

// startHeartbeat arms the first timer before returning, so a clock advanced
// right after the call is observed.
func startHeartbeat(c clock.Clock, delay, period time.Duration, beat func()) *heartbeat {
	h := &heartbeat{
		beat:   beat,
		period: period,
		clock:  c,
		first:  c.Timer(delay),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *heartbeat) run() {
	defer close(h.done)
	defer h.first.Stop()

	select {
	case <-h.stop:
		return
	case <-h.first.C:
	}

	// The ticker exists before the first beat goes out; observers that wait
	// for that beat can advance the clock safely.
	ticker := h.clock.Ticker(h.period)
	defer ticker.Stop()

	h.beat()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			select {
			case <-h.stop:
				return
			default:
			}
			h.beat()
		}
	}
}

// Stop ends the loop and waits for an in-flight beat to finish.
func (h *heartbeat) Stop() {
	close(h.stop)
	<-h.done
}
