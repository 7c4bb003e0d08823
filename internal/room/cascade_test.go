package room

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/adamvoss/pexeso-server/internal/client"
)

func setupPlayingRoom(t *testing.T, reg *Registry, n int) (*Room, []*client.Client) {
	t.Helper()
	r, err := reg.Create("room", n, 4)
	if err != nil {
		t.Fatal(err)
	}
	players := make([]*client.Client, n)
	for i := range players {
		players[i] = newClient(i + 1)
		if err := r.AddPlayer(players[i]); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := r.CreateGame(rand.New(rand.NewSource(1))); err != nil {
		t.Fatal(err)
	}
	for _, p := range players {
		r.g.PlayerReady(p)
	}
	if err := r.BeginPlay(); err != nil {
		t.Fatal(err)
	}
	return r, players
}

func TestRemovePlayerCascadeForfeitsAndDestroysWhenTooThin(t *testing.T) {
	reg := NewRegistry(2)
	r, players := setupPlayingRoom(t, reg, 2)

	outcome := reg.RemovePlayerCascade(r, players[0])

	if !outcome.Forfeited || !outcome.RoomDestroyed {
		t.Fatalf("expected forfeit + destroy, got %+v", outcome)
	}
	if _, ok := reg.FindByID(r.ID()); ok {
		t.Error("expected the room to be removed from the registry")
	}
	if players[1].State() != client.StateInLobby {
		t.Errorf("expected the surviving player returned to the lobby, got %v", players[1].State())
	}
	if players[1].RoomID() != 0 {
		t.Error("expected the surviving player's room back-reference cleared")
	}
}

func TestRemovePlayerCascadeContinuesGameWithEnoughSurvivors(t *testing.T) {
	reg := NewRegistry(2)
	r, players := setupPlayingRoom(t, reg, 3)

	outcome := reg.RemovePlayerCascade(r, players[0])

	if outcome.Forfeited || outcome.RoomDestroyed {
		t.Fatalf("expected the game to continue, got %+v", outcome)
	}
	if !outcome.Removed {
		t.Fatal("expected Removed")
	}
	if r.PlayerCount() != 2 {
		t.Errorf("expected 2 remaining seated players, got %d", r.PlayerCount())
	}
}

func TestRemovePlayerCascadeDestroysGhostRoom(t *testing.T) {
	reg := NewRegistry(2)
	r, err := reg.Create("room", 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	owner, other := newClient(1), newClient(2)
	r.AddPlayer(owner)
	r.AddPlayer(other)
	other.SetState(client.StateDisconnectedPending)

	outcome := reg.RemovePlayerCascade(r, owner)

	if !outcome.RoomDestroyed {
		t.Fatal("expected a ghost room to be destroyed")
	}
	if _, ok := reg.FindByID(r.ID()); ok {
		t.Error("expected the ghost room removed from the registry")
	}
}

func TestRemovePlayerCascadeDestroysEmptyRoom(t *testing.T) {
	reg := NewRegistry(2)
	r, err := reg.Create("room", 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	only := newClient(1)
	r.AddPlayer(only)

	outcome := reg.RemovePlayerCascade(r, only)

	if !outcome.RoomDestroyed {
		t.Fatal("expected the now-empty room destroyed")
	}
}

// recordingTransport captures every line sent to it, so a test can inspect
// the exact GAME_END_FORFEIT tokens a survivor received.
type recordingTransport struct {
	sent *[]string
}

func (t recordingTransport) Send(line string) error {
	*t.sent = append(*t.sent, line)
	return nil
}
func (t recordingTransport) Close() error       { return nil }
func (t recordingTransport) RemoteAddr() string { return "fake" }

// TestForfeitPayoutKeepsScoresAttachedToTheRightPlayerAfterAReorder guards
// spec.md's Open Question about the original's winner-index bug: a seat
// removed mid-game shifts every later game.Player down one slot in
// game.Game's internal slice (see Game.RemovePlayer), and GAME_END_FORFEIT
// must still print each survivor's own score, not whatever score now sits at
// their old numeric index.
func TestForfeitPayoutKeepsScoresAttachedToTheRightPlayerAfterAReorder(t *testing.T) {
	reg := NewRegistry(2)
	r, players := setupPlayingRoom(t, reg, 3)
	players[0].SetNickname("alice")
	players[1].SetNickname("bob")
	players[2].SetNickname("carol")

	g := r.Game()
	for _, p := range g.Players() {
		switch p.Client {
		case players[0]:
			p.Score = 9
		case players[1]:
			p.Score = 1
		case players[2]:
			p.Score = 4
		}
	}

	// Removing alice the way a mid-game "enough survivors remain" disconnect
	// does (game.Game.RemovePlayer then room.Room.RemovePlayer, mirroring
	// session.disconnectWithSurvivors) shifts bob and carol down one slot
	// inside game.Game's internal player slice. The bug this guards against
	// would print whichever score now lands at a survivor's old numeric
	// index instead of its own.
	g.RemovePlayer(players[0])
	r.RemovePlayer(players[0])

	var sent []string
	carolTransport := recordingTransport{sent: &sent}
	players[2].SetTransport(carolTransport)

	// Removing bob now leaves only carol — fewer than MinPlayers — forcing
	// the forfeit-and-destroy path.
	outcome := reg.RemovePlayerCascade(r, players[1])
	if !outcome.Forfeited {
		t.Fatalf("expected a forfeit, got %+v", outcome)
	}

	if len(sent) != 1 {
		t.Fatalf("expected exactly one broadcast line to carol, got %v", sent)
	}
	fields := strings.Fields(sent[0])
	if fields[0] != "GAME_END_FORFEIT" {
		t.Fatalf("expected a GAME_END_FORFEIT line, got %q", sent[0])
	}

	scores := map[string]string{}
	for i := 1; i+1 < len(fields); i += 2 {
		scores[fields[i]] = fields[i+1]
	}
	if _, ok := scores["carol"]; !ok {
		t.Fatalf("expected carol's own score printed, got %q", sent[0])
	}
	if ok := scores["carol"]; ok != "12" {
		t.Errorf("expected carol's score (4 plus all 8 leftover pairs, since she's the sole survivor) to be 12, got %q from %q", ok, sent[0])
	}
}

func TestRemovePlayerCascadeIsNoOpForUnseatedClient(t *testing.T) {
	reg := NewRegistry(2)
	r, err := reg.Create("room", 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	stranger := newClient(99)

	outcome := reg.RemovePlayerCascade(r, stranger)
	if outcome.Removed {
		t.Error("expected no-op for a client never seated in this room")
	}
}
