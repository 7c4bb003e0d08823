package session

import (
	"time"

	"github.com/adamvoss/pexeso-server/internal/client"
	"github.com/adamvoss/pexeso-server/internal/game"
	"github.com/adamvoss/pexeso-server/internal/protocol"
	"github.com/adamvoss/pexeso-server/internal/room"
)

// teardown runs once Run's read loop exits, implementing spec.md §4.5's
// disconnect policy. Exactly one of its branches applies, in the order
// spec.md lists them: shutdown-in-progress, already-reaped, mid-game with
// enough survivors to continue, mid-game too thin to continue, and
// merely-in-a-room-or-lobby.
func (s *Session) teardown() {
	select {
	case <-s.shutdownCtx.Done():
		// The acceptor's shutdown path owns freeing every registered client;
		// leave the registry entry alone and just make sure the transport
		// won't be used for further sends.
		s.client.MarkDisconnected(time.Now())
		return
	default:
	}

	if s.client.State() == client.StateDisconnectedPending {
		// The reaper already forced this session's transport closed on a
		// pong timeout before the read loop noticed; it owns the reconnect
		// window and eventual forfeit/removal from here.
		return
	}

	r := s.currentRoom()
	var g *game.Game
	if r != nil {
		g = r.Game()
	}

	if r != nil && g != nil && g.State() == game.StatusPlaying {
		if r.PlayerCount()-1 >= room.MinPlayers {
			s.disconnectWithSurvivors(r, g)
		} else {
			s.disconnectIntoReconnectWindow(r)
		}
		return
	}

	if r != nil {
		s.rooms.RemovePlayerCascade(r, s.client)
	}
	s.clients.Remove(s.client)
	s.client.MarkDisconnected(time.Now())
}

// disconnectWithSurvivors handles a mid-game drop that leaves at least two
// players behind: the departing client is removed outright (no reconnect
// window — spec.md §4.5 only grants one when too few players would remain)
// and play continues.
func (s *Session) disconnectWithSurvivors(r *room.Room, g *game.Game) {
	wasCurrentTurn := g.CurrentPlayer() == s.client

	g.RemovePlayer(s.client)
	r.RemovePlayer(s.client)
	r.BroadcastExcept(s.client, protocol.PlayerDisconnected(s.client.Nickname(), "REMOVED", "Game continues"))

	if wasCurrentTurn {
		if cur := g.CurrentPlayer(); cur != nil {
			cur.Send(protocol.YourTurn())
		}
	}

	s.clients.Remove(s.client)
	s.client.MarkDisconnected(time.Now())
}

// disconnectIntoReconnectWindow handles a mid-game drop that would leave
// fewer than two players: the client's seat is preserved, marked
// DISCONNECTED_PENDING, and left for the liveness reaper to either reclaim
// (on a successful RECONNECT) or forfeit (once ReconnectTimeout elapses).
func (s *Session) disconnectIntoReconnectWindow(r *room.Room) {
	now := time.Now()
	s.client.SetState(client.StateDisconnectedPending)
	s.client.MarkDisconnected(now)
	r.BroadcastExcept(s.client, protocol.PlayerDisconnected(s.client.Nickname(), "SHORT", "awaiting reconnect"))
}
