package session

import (
	"strconv"
	"time"

	"github.com/adamvoss/pexeso-server/internal/client"
	"github.com/adamvoss/pexeso-server/internal/game"
	"github.com/adamvoss/pexeso-server/internal/liveness"
	"github.com/adamvoss/pexeso-server/internal/protocol"
	"github.com/adamvoss/pexeso-server/internal/room"
)

// handleReconnect implements spec.md §4.6: a brand-new session (one that
// hasn't yet authenticated) presents an old client_id and, if that session
// is genuinely disconnected and still within its reconnect window, adopts
// its identity — nickname, client_id, lifecycle state, and room — and has
// every room/game back-reference still pointing at the old session
// repointed at this one, atomically, under the registries' own locking.
func (s *Session) handleReconnect(msg protocol.Message) (closed bool) {
	if s.client.State() != client.StateConnected {
		return s.sendError(protocol.ErrAlreadyAuthenticated, "")
	}

	fields := msg.Fields()
	if len(fields) != 1 {
		return s.sendError(protocol.ErrInvalidSyntax, "RECONNECT <old_client_id>")
	}
	oldID, err := strconv.Atoi(fields[0])
	if err != nil {
		return s.sendError(protocol.ErrInvalidSyntax, "old_client_id must be an integer")
	}

	old := s.clients.FindByID(oldID)
	if old == nil {
		return s.sendError(protocol.ErrInvalidParams, "unknown client_id")
	}
	if !old.IsDisconnected() {
		return s.sendError(protocol.ErrInvalidParams, "original session is still connected")
	}
	if time.Since(old.DisconnectTime()) > liveness.ReconnectTimeout {
		return s.sendError(protocol.ErrInvalidParams, "reconnect window has expired")
	}

	newClient := s.client
	newClient.AdoptFrom(old)

	var r *room.Room
	if roomID := newClient.RoomID(); roomID != 0 {
		if found, ok := s.rooms.FindByID(roomID); ok {
			r = found
			if matched := r.ReplaceClient(old, newClient); matched > 1 {
				s.logger.LogInvariantBug("old client occupied more than one room seat", "client_id", newClient.ID(), "matched", matched)
			}
			if g := r.Game(); g != nil {
				if matched := g.ReplacePlayerClient(old, newClient); matched > 1 {
					s.logger.LogInvariantBug("old client occupied more than one game seat", "client_id", newClient.ID(), "matched", matched)
				}
			}
		}
	}

	// AdoptFrom copies old's state verbatim, which is always
	// DISCONNECTED_PENDING (RECONNECT requires old to be disconnected) — left
	// uncorrected, the reaper would see a DISCONNECTED_PENDING client with a
	// zero-value DisconnectTime and reap this brand-new session on its very
	// next sweep. Resolve the state this reconnect actually lands in before
	// anything else observes it.
	switch {
	case r == nil:
		newClient.SetState(client.StateInLobby)
	case r.Game() != nil && r.Game().State() == game.StatusPlaying:
		newClient.SetState(client.StateInGame)
	default:
		newClient.SetState(client.StateInRoom)
	}

	s.clients.Replace(old, newClient)

	newClient.Send(protocol.Welcome(newClient.ID(), "Reconnected successfully"))
	if r != nil {
		r.BroadcastExcept(newClient, protocol.PlayerReconnected(newClient.Nickname()))
		s.restoreContext(r, newClient)
	}
	return false
}

// restoreContext sends whatever WELCOME-adjacent context spec.md §4.6
// prescribes for the state the reconnecting client landed back in: full
// GAME_STATE (plus YOUR_TURN if applicable) for a PLAYING game, a
// ROOM_JOINED + GAME_CREATED reminder for a game still WAITING on READYs,
// or a bare ROOM_JOINED for a room with no game yet.
func (s *Session) restoreContext(r *room.Room, c *client.Client) {
	g := r.Game()
	if g == nil {
		c.Send(protocol.RoomJoined(r.ID(), r.Name()))
		return
	}

	switch g.State() {
	case game.StatusPlaying:
		players := g.Players()
		scores := make([]protocol.ScoreLine, len(players))
		for i, p := range players {
			scores[i] = protocol.ScoreLine{Nick: p.Client.Nickname(), Score: p.Score}
		}
		currentNick := ""
		if cur := g.CurrentPlayer(); cur != nil {
			currentNick = cur.Nickname()
		}
		c.Send(protocol.GameState(g.BoardSize(), currentNick, scores, g.Slots()))
		if g.CurrentPlayer() == c {
			c.Send(protocol.YourTurn())
		}
	case game.StatusWaiting:
		c.Send(protocol.RoomJoined(r.ID(), r.Name()))
		c.Send(protocol.GameCreated(g.BoardSize(), "send READY when you are ready to play"))
	default:
		c.Send(protocol.RoomJoined(r.ID(), r.Name()))
	}
}
