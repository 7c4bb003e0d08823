package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/adamvoss/pexeso-server/internal/client"
	"github.com/adamvoss/pexeso-server/internal/logging"
	"github.com/adamvoss/pexeso-server/internal/protocol"
	"github.com/adamvoss/pexeso-server/internal/room"
)

// Timeouts spec.md §5 fixes exactly: a client that doesn't answer a PING
// within PongTimeout is marked DISCONNECTED_PENDING; one that sends nothing
// at all (not even PONG) for InactivityTimeout has its transport force
// closed; and a DISCONNECTED_PENDING client that doesn't RECONNECT within
// ReconnectTimeout forfeits its seat.
const (
	PongTimeout       = 5 * time.Second
	InactivityTimeout = 120 * time.Second
	ReconnectTimeout  = 90 * time.Second

	reapTickInterval = 5 * time.Second
)

// Reaper is the background sweep that turns unanswered pings, silence, and
// expired reconnect windows into session teardown. Grounded on the
// teacher's CleanupService.cleanupWorker — a ticker plus manual-trigger
// channel, guarded by a context.Context and joined via sync.WaitGroup.
type Reaper struct {
	clients *client.Registry
	rooms   *room.Registry
	logger  *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	triggerCh chan struct{}
}

// NewReaper builds a reaper over the given client registry and room lookup.
func NewReaper(clients *client.Registry, rooms *room.Registry, logger *logging.Logger) *Reaper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reaper{
		clients:   clients,
		rooms:     rooms,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		triggerCh: make(chan struct{}, 1),
	}
}

func (rp *Reaper) Start() {
	rp.wg.Add(1)
	go rp.run()
}

func (rp *Reaper) Stop() {
	rp.cancel()
	rp.wg.Wait()
}

func (rp *Reaper) Trigger() {
	select {
	case rp.triggerCh <- struct{}{}:
	default:
	}
}

func (rp *Reaper) run() {
	defer rp.wg.Done()

	ticker := time.NewTicker(reapTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rp.ctx.Done():
			return
		case <-ticker.C:
			rp.sweep()
		case <-rp.triggerCh:
			rp.sweep()
		}
	}
}

func (rp *Reaper) sweep() {
	now := time.Now()

	for _, c := range rp.clients.Snapshot() {
		switch c.State() {
		case client.StateDisconnectedPending:
			rp.sweepPendingReconnect(c, now)
		default:
			rp.sweepLive(c, now)
		}
	}
}

// sweepLive handles a still-connected client: a pong timeout demotes it to
// DISCONNECTED_PENDING itself (closing its transport, starting the
// reconnect window) — the reaper owns that transition outright, per
// spec.md §4.7. Prolonged silence only closes the transport; the session's
// own read loop then observes the close and runs its usual teardown
// (spec.md §4.5), which is what decides REMOVED vs SHORT from the room's
// remaining-survivor count — the reaper has no business making that call
// for a connection that never failed a liveness check.
func (rp *Reaper) sweepLive(c *client.Client, now time.Time) {
	if c.WaitingForPong() && now.Sub(c.LastPingSent()) >= PongTimeout {
		rp.logger.Debug("pong timeout", "client_id", c.ID(), "trace_id", c.TraceID())
		rp.beginReconnectWindow(c, now)
		return
	}

	if now.Sub(c.LastActivity()) >= InactivityTimeout {
		rp.logger.Debug("inactivity timeout", "client_id", c.ID(), "trace_id", c.TraceID())
		c.Transport().Close()
	}
}

// beginReconnectWindow marks c DISCONNECTED_PENDING and closes its
// transport, without yet touching its room seat — the seat stays reserved
// until ReconnectTimeout elapses, matching spec.md §4.5/§4.6's "player slot
// remains reserved during the grace window" invariant.
func (rp *Reaper) beginReconnectWindow(c *client.Client, now time.Time) {
	if c.State() == client.StateDisconnectedPending {
		return
	}
	c.SetState(client.StateDisconnectedPending)
	c.MarkDisconnected(now)
	c.Transport().Close()

	if roomID := c.RoomID(); roomID != 0 {
		if r, ok := rp.rooms.FindByID(roomID); ok {
			r.BroadcastExcept(c, protocol.PlayerDisconnected(c.Nickname(), "SHORT", "awaiting reconnect"))
		}
	}
}

// sweepPendingReconnect forfeits c's seat once its reconnect window has
// elapsed: the room cascade (spec.md §4.3, via room.Registry's
// RemovePlayerCascade) computes payout from the room's game snapshot (if
// any), removes c from the game and room, and the slot is freed from the
// client registry.
func (rp *Reaper) sweepPendingReconnect(c *client.Client, now time.Time) {
	if now.Sub(c.DisconnectTime()) < ReconnectTimeout {
		return
	}

	if roomID := c.RoomID(); roomID != 0 {
		if r, ok := rp.rooms.FindByID(roomID); ok {
			rp.rooms.RemovePlayerCascade(r, c)
		}
	}

	if matched := rp.clients.Remove(c); matched > 1 {
		rp.logger.LogInvariantBug("client occupied more than one registry slot", "client_id", c.ID(), "matched", matched)
	}
}
