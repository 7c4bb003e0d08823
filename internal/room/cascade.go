package room

import (
	"github.com/adamvoss/pexeso-server/internal/client"
	"github.com/adamvoss/pexeso-server/internal/game"
	"github.com/adamvoss/pexeso-server/internal/protocol"
)

// CascadeOutcome reports everything that happened while removing a player
// from a room, so callers (the session handler's LEAVE_ROOM/disconnect
// paths, and the liveness reaper's reconnect-timeout path) can decide what
// else to do (e.g. free the caller's own Client record) without duplicating
// spec.md §4.3's four-case cascade themselves.
type CascadeOutcome struct {
	Removed       bool
	RoomDestroyed bool
	Forfeited     bool
}

// RemovePlayerCascade is the centerpiece spec.md §4.3 describes: removing c
// from r and applying, in order, the four cascading cases —
// cancel-for-underpopulation with forfeit payout, ownership transfer,
// ghost-room destruction, and empty-room destruction. It broadcasts every
// notification the cascade implies and destroys the room in reg when
// called for, all under reg's and r's own locking (each Room/Registry method
// below takes its own lock internally; this function holds neither across
// the whole cascade, matching the "broadcast from within the lock via a
// private locked variant" design spec.md §4.2 calls for — here expressed by
// each step being its own short locked operation rather than one giant
// critical section).
func (reg *Registry) RemovePlayerCascade(r *Room, c *client.Client) CascadeOutcome {
	g := r.Game()

	if g != nil && g.State() == game.StatusPlaying && r.PlayerCount()-1 < MinPlayers {
		return reg.forfeitAndDestroy(r, c, g)
	}

	if g != nil && g.State() == game.StatusPlaying {
		g.RemovePlayer(c)
	}
	outcome := r.RemovePlayer(c)
	if !outcome.Removed {
		return CascadeOutcome{}
	}

	if outcome.RoomEmpty {
		reg.Destroy(r.ID())
		return CascadeOutcome{Removed: true, RoomDestroyed: true}
	}

	if outcome.GhostRoom {
		r.Broadcast(protocol.RoomClosed("Owner left"))
		for _, occ := range r.Players() {
			occ.SetState(client.StateInLobby)
			occ.SetRoomID(0)
		}
		reg.Destroy(r.ID())
		return CascadeOutcome{Removed: true, RoomDestroyed: true}
	}

	r.Broadcast(protocol.PlayerLeft(c.Nickname()))
	if outcome.NewOwner != nil {
		r.Broadcast(protocol.RoomOwnerChanged(outcome.NewOwner.Nickname()))
	}

	return CascadeOutcome{Removed: true}
}

// forfeitAndDestroy implements spec.md §4.3 case 1: distribute the
// still-unmatched pairs among the highest-scoring survivors, broadcast
// GAME_END_FORFEIT, and tear the room down entirely — survivors return to
// the lobby rather than staying seated in a finished room.
func (reg *Registry) forfeitAndDestroy(r *Room, c *client.Client, g *game.Game) CascadeOutcome {
	remainingPairs := g.TotalPairs() - g.MatchedPairs()
	g.RemovePlayer(c)
	r.RemovePlayer(c)
	r.Finish()

	survivors := g.Players()
	ForfeitPayout(survivors, remainingPairs)

	scores := make([]protocol.ScoreLine, len(survivors))
	for i, p := range survivors {
		scores[i] = protocol.ScoreLine{Nick: p.Client.Nickname(), Score: p.Score}
		p.Client.SetState(client.StateInLobby)
		p.Client.SetRoomID(0)
	}
	r.Broadcast(protocol.GameEndForfeit(scores))

	reg.Destroy(r.ID())
	return CascadeOutcome{Removed: true, RoomDestroyed: true, Forfeited: true}
}
