// Package liveness runs the two background sweeps that keep dead
// connections from lingering: a heartbeat that pings idle clients, and a
// reaper that turns unanswered pings, prolonged inactivity, and expired
// reconnect windows into session teardown. Both are grounded on the
// teacher's internal/room/cleanup.go CleanupService shape — a ticker-driven
// goroutine with a context.Context for shutdown and a sync.WaitGroup the
// caller joins on Stop.
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/adamvoss/pexeso-server/internal/client"
	"github.com/adamvoss/pexeso-server/internal/logging"
	"github.com/adamvoss/pexeso-server/internal/protocol"
)

// PongWaitInterval is how old a client's last PONG must be before the
// heartbeat sends it another PING. The answer window itself is the reaper's
// PongTimeout.
const PongWaitInterval = 5 * time.Second

// tickInterval is how often the heartbeat goroutine wakes to scan for idle
// clients due a PING.
const tickInterval = 1 * time.Second

// Heartbeat periodically PINGs authenticated clients that have gone quiet,
// so the reaper has something to time out if they never answer.
type Heartbeat struct {
	registry *client.Registry
	logger   *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	triggerCh chan struct{}
}

// NewHeartbeat builds a heartbeat sweep over registry.
func NewHeartbeat(registry *client.Registry, logger *logging.Logger) *Heartbeat {
	ctx, cancel := context.WithCancel(context.Background())
	return &Heartbeat{
		registry:  registry,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		triggerCh: make(chan struct{}, 1),
	}
}

// Start launches the background goroutine.
func (h *Heartbeat) Start() {
	h.wg.Add(1)
	go h.run()
}

// Stop cancels the goroutine and waits for it to exit.
func (h *Heartbeat) Stop() {
	h.cancel()
	h.wg.Wait()
}

// Trigger requests an out-of-cycle sweep, best-effort (a full queue means
// one is already pending).
func (h *Heartbeat) Trigger() {
	select {
	case h.triggerCh <- struct{}{}:
	default:
	}
}

func (h *Heartbeat) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.sweep()
		case <-h.triggerCh:
			h.sweep()
		}
	}
}

// sweep PINGs every authenticated, connected client that is not already
// waiting for a pong and whose last pong is at least PongWaitInterval old.
func (h *Heartbeat) sweep() {
	now := time.Now()
	for _, c := range h.registry.Snapshot() {
		if c.IsDisconnected() {
			continue
		}
		if !c.State().AtLeastLobby() {
			continue
		}
		if c.WaitingForPong() {
			continue
		}
		if now.Sub(c.LastPongReceived()) < PongWaitInterval {
			continue
		}
		if err := c.Send(protocol.Ping()); err != nil {
			continue
		}
		c.MarkPingSent(now)
		h.logger.Debug("sent heartbeat ping", "client_id", c.ID(), "trace_id", c.TraceID())
	}
}
