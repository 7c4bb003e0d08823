package room

import (
	"errors"
	"sync"

	"github.com/adamvoss/pexeso-server/internal/client"
	"github.com/adamvoss/pexeso-server/internal/game"
	"github.com/adamvoss/pexeso-server/internal/protocol"
)

var (
	ErrRegistryFull  = errors.New("room: registry is full")
	ErrRoomNotFound  = errors.New("room: not found")
)

// Registry is the process-wide, fixed-capacity table of rooms, keyed by a
// monotonically increasing room_id. Generalized from the teacher's
// map[string]*game.Room RoomManager (internal/room/manager.go), replacing
// random alphanumeric codes with spec.md's plain integer ids and an explicit
// capacity ceiling.
type Registry struct {
	mu       sync.Mutex
	capacity int
	rooms    map[int]*Room
	nextID   int
}

// NewRegistry creates a registry that holds at most capacity rooms
// simultaneously.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		rooms:    make(map[int]*Room),
		nextID:   1,
	}
}

// Create allocates a new room if the registry has spare capacity.
func (reg *Registry) Create(name string, maxPlayers, boardSize int) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if len(reg.rooms) >= reg.capacity {
		return nil, ErrRegistryFull
	}

	id := reg.nextID
	reg.nextID++

	r := newRoom(id, name, maxPlayers, boardSize)
	reg.rooms[id] = r
	return r, nil
}

// FindByID looks up a room by id.
func (reg *Registry) FindByID(id int) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[id]
	return r, ok
}

// Destroy removes a room from the registry outright (used once its last
// occupant leaves, or once the acceptor shuts the server down).
func (reg *Registry) Destroy(id int) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, id)
}

// Len reports the current room count, for metrics.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// CountPlaying reports how many rooms are currently PLAYING, for metrics.
func (reg *Registry) CountPlaying() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	n := 0
	for _, r := range reg.rooms {
		if r.State() == StatusPlaying {
			n++
		}
	}
	return n
}

// List returns a snapshot of every non-FINISHED room as a ROOM_LIST entry,
// per spec.md §6's LIST_ROOMS contract (finished rooms are pruned from the
// listing, not from the registry — they're removed once empty, same as any
// other room).
func (reg *Registry) List() []protocol.RoomListEntry {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	entries := make([]protocol.RoomListEntry, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if r.state == StatusFinished {
			r.mu.Unlock()
			continue
		}
		entries = append(entries, protocol.RoomListEntry{
			ID:         r.id,
			Name:       r.name,
			Players:    r.playerCountLocked(),
			MaxPlayers: r.maxPlayers,
			State:      r.state.String(),
			BoardSize:  r.boardSize,
		})
		r.mu.Unlock()
	}
	return entries
}

// Snapshot copies out every room currently in the registry, regardless of
// state, for the acceptor's shutdown sweep (List deliberately omits FINISHED
// rooms, which still need their games freed on the way down).
func (reg *Registry) Snapshot() []*Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

// Broadcast sends line to every seated player in the room.
func (r *Room) Broadcast(line string) {
	for _, c := range r.Players() {
		c.Send(line)
	}
}

// BroadcastExcept sends line to every seated player other than except.
func (r *Room) BroadcastExcept(except *client.Client, line string) {
	for _, c := range r.Players() {
		if c != except {
			c.Send(line)
		}
	}
}

// ForfeitPayout computes the score redistribution spec.md §4.3 requires
// when a player leaves (or is reaped) mid-game: the unrevealed pairs are
// split evenly among the tied-for-first survivors, floor(remaining/W) each,
// with the remainder (remaining mod W) going one each, in seating order, to
// the first players in that tie. survivors must be every still-seated
// player's *game.Player (the winner-tie computation only considers players
// who remain after the departure). remainingPairs is totalPairs -
// matchedPairs at the moment of departure.
func ForfeitPayout(survivors []*game.Player, remainingPairs int) {
	if len(survivors) == 0 || remainingPairs == 0 {
		return
	}

	max := survivors[0].Score
	for _, p := range survivors[1:] {
		if p.Score > max {
			max = p.Score
		}
	}
	var tied []*game.Player
	for _, p := range survivors {
		if p.Score == max {
			tied = append(tied, p)
		}
	}

	w := len(tied)
	share := remainingPairs / w
	remainder := remainingPairs % w

	for i, p := range tied {
		p.Score += share
		if i < remainder {
			p.Score++
		}
	}
}
