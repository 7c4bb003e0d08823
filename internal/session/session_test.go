package session

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/adamvoss/pexeso-server/internal/client"
	"github.com/adamvoss/pexeso-server/internal/game"
	"github.com/adamvoss/pexeso-server/internal/logging"
	"github.com/adamvoss/pexeso-server/internal/protocol"
	"github.com/adamvoss/pexeso-server/internal/room"
)

// loopbackPair returns two connected *net.TCPConn over the loopback
// interface: unlike net.Pipe, writes are OS-buffered, so a handler can Send
// a handful of response lines without a concurrent reader draining the
// other end.
func loopbackPair(t *testing.T) (a, b net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		acceptCh <- conn
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	select {
	case conn := <-acceptCh:
		return conn, client
	case err := <-errCh:
		t.Fatal(err)
		return nil, nil
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for loopback accept")
		return nil, nil
	}
}

func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(logging.Config{Level: "error", Format: "text", Service: "test"})
	if err != nil {
		t.Fatal(err)
	}
	return logger
}

// newTestSession wires a Session to one end of a loopback TCP pair,
// registers it in clients/rooms, and returns the peer end so the test can
// read whatever the handler Sent.
func newTestSession(t *testing.T, id int, clients *client.Registry, rooms *room.Registry) (*Session, net.Conn) {
	t.Helper()
	server, peer := loopbackPair(t)
	t.Cleanup(func() {
		server.Close()
		peer.Close()
	})

	rng := game.NewRNGSource(1)
	s := New(server, id, clients, rooms, rng, newTestLogger(t), context.Background())
	return s, peer
}

func readLine(t *testing.T, conn net.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	return line
}

func TestHandleHelloAuthenticatesAndWelcomes(t *testing.T) {
	clients := client.NewRegistry(4)
	rooms := room.NewRegistry(4)
	s, peer := newTestSession(t, 1, clients, rooms)

	if closed := s.dispatch(protocol.Message{Command: protocol.CmdHello, Params: "alice"}); closed {
		t.Fatal("HELLO should never close the session")
	}
	if s.client.State() != client.StateInLobby {
		t.Errorf("expected StateInLobby after HELLO, got %v", s.client.State())
	}
	if s.client.Nickname() != "alice" {
		t.Errorf("expected nickname alice, got %q", s.client.Nickname())
	}

	line := readLine(t, peer)
	if line == "" {
		t.Fatal("expected a WELCOME line")
	}
}

func TestHandleHelloRejectsWhenAlreadyAuthenticated(t *testing.T) {
	clients := client.NewRegistry(4)
	rooms := room.NewRegistry(4)
	s, _ := newTestSession(t, 1, clients, rooms)

	s.dispatch(protocol.Message{Command: protocol.CmdHello, Params: "alice"})
	closed := s.dispatch(protocol.Message{Command: protocol.CmdHello, Params: "bob"})
	if closed {
		t.Fatal("a single rejected HELLO shouldn't close the session")
	}
	if s.client.Nickname() != "alice" {
		t.Errorf("expected the original nickname preserved, got %q", s.client.Nickname())
	}
}

func TestHandleCreateRoomThenJoinRoom(t *testing.T) {
	clients := client.NewRegistry(4)
	rooms := room.NewRegistry(4)

	owner, ownerPeer := newTestSession(t, 1, clients, rooms)
	owner.dispatch(protocol.Message{Command: protocol.CmdHello, Params: "owner"})
	readLine(t, ownerPeer)

	if closed := owner.dispatch(protocol.Message{Command: protocol.CmdCreateRoom, Params: "room1 2 4"}); closed {
		t.Fatal("CREATE_ROOM should not close the session")
	}
	readLine(t, ownerPeer)

	if owner.client.RoomID() == 0 {
		t.Fatal("expected the owner seated in a room")
	}
	r, ok := rooms.FindByID(owner.client.RoomID())
	if !ok {
		t.Fatal("expected the room registered")
	}
	if r.Owner() != owner.client {
		t.Error("expected the creator to own the room")
	}

	joiner, joinerPeer := newTestSession(t, 2, clients, rooms)
	joiner.dispatch(protocol.Message{Command: protocol.CmdHello, Params: "joiner"})
	readLine(t, joinerPeer)

	roomIDStr := strconv.Itoa(r.ID())
	if closed := joiner.dispatch(protocol.Message{Command: protocol.CmdJoinRoom, Params: roomIDStr}); closed {
		t.Fatal("JOIN_ROOM should not close the session")
	}
	readLine(t, joinerPeer)
	readLine(t, ownerPeer) // PLAYER_JOINED broadcast to the owner

	if r.PlayerCount() != 2 {
		t.Errorf("expected 2 seated players, got %d", r.PlayerCount())
	}
}

func TestHandleJoinRoomUnknownRoomErrors(t *testing.T) {
	clients := client.NewRegistry(4)
	rooms := room.NewRegistry(4)
	s, peer := newTestSession(t, 1, clients, rooms)
	s.dispatch(protocol.Message{Command: protocol.CmdHello, Params: "alice"})
	readLine(t, peer)

	s.dispatch(protocol.Message{Command: protocol.CmdJoinRoom, Params: "999"})
	line := readLine(t, peer)
	if line == "" {
		t.Fatal("expected an ERROR line for an unknown room")
	}
}

func TestTeardownDisconnectWithSurvivorsRemovesDepartingPlayer(t *testing.T) {
	clients := client.NewRegistry(4)
	rooms := room.NewRegistry(4)

	r, err := rooms.Create("room", 3, 4)
	if err != nil {
		t.Fatal(err)
	}

	s1, peer1 := newTestSession(t, 1, clients, rooms)
	s2, peer2 := newTestSession(t, 2, clients, rooms)
	s3, peer3 := newTestSession(t, 3, clients, rooms)
	_ = peer2
	_ = peer3

	for _, s := range []*Session{s1, s2, s3} {
		s.client.SetState(client.StateInLobby)
	}
	if err := r.AddPlayer(s1.client); err != nil {
		t.Fatal(err)
	}
	if err := r.AddPlayer(s2.client); err != nil {
		t.Fatal(err)
	}
	if err := r.AddPlayer(s3.client); err != nil {
		t.Fatal(err)
	}
	for _, s := range []*Session{s1, s2, s3} {
		s.client.SetRoomID(r.ID())
		s.client.SetState(client.StateInRoom)
	}

	rng := game.NewRNGSource(1)
	if _, err := r.CreateGame(rng.Next()); err != nil {
		t.Fatal(err)
	}
	g := r.Game()
	g.PlayerReady(s1.client)
	g.PlayerReady(s2.client)
	g.PlayerReady(s3.client)
	if err := r.BeginPlay(); err != nil {
		t.Fatal(err)
	}

	s1.teardown()

	if clients.FindByID(1) != nil {
		t.Error("expected the departing client removed from the registry")
	}
	if r.PlayerCount() != 2 {
		t.Errorf("expected 2 remaining seated players, got %d", r.PlayerCount())
	}
	if !r.HasClient(s2.client) || !r.HasClient(s3.client) {
		t.Error("expected the survivors still seated")
	}

	peer1.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	buf := make([]byte, 1)
	if _, err := peer1.Read(buf); err == nil {
		t.Error("expected the departing client's transport closed")
	}
}

func TestTeardownDisconnectIntoReconnectWindowWhenTooThin(t *testing.T) {
	clients := client.NewRegistry(4)
	rooms := room.NewRegistry(4)

	r, err := rooms.Create("room", 2, 4)
	if err != nil {
		t.Fatal(err)
	}

	s1, _ := newTestSession(t, 1, clients, rooms)
	s2, _ := newTestSession(t, 2, clients, rooms)

	if err := r.AddPlayer(s1.client); err != nil {
		t.Fatal(err)
	}
	if err := r.AddPlayer(s2.client); err != nil {
		t.Fatal(err)
	}
	for _, s := range []*Session{s1, s2} {
		s.client.SetRoomID(r.ID())
		s.client.SetState(client.StateInRoom)
	}

	rng := game.NewRNGSource(1)
	if _, err := r.CreateGame(rng.Next()); err != nil {
		t.Fatal(err)
	}
	g := r.Game()
	g.PlayerReady(s1.client)
	g.PlayerReady(s2.client)
	if err := r.BeginPlay(); err != nil {
		t.Fatal(err)
	}

	s1.teardown()

	if clients.FindByID(1) == nil {
		t.Error("expected the departing client's registry slot preserved for the reconnect window")
	}
	if s1.client.State() != client.StateDisconnectedPending {
		t.Errorf("expected DISCONNECTED_PENDING, got %v", s1.client.State())
	}
	if !r.HasClient(s1.client) {
		t.Error("expected the seat preserved, not vacated, during the reconnect window")
	}
}

func TestHandleReconnectResolvesStateAfterAdopt(t *testing.T) {
	clients := client.NewRegistry(4)
	rooms := room.NewRegistry(4)

	r, err := rooms.Create("room", 2, 4)
	if err != nil {
		t.Fatal(err)
	}

	original, _ := newTestSession(t, 1, clients, rooms)
	original.client.SetNickname("alice")
	other, otherPeer := newTestSession(t, 2, clients, rooms)
	other.client.SetNickname("bob")

	if err := r.AddPlayer(original.client); err != nil {
		t.Fatal(err)
	}
	if err := r.AddPlayer(other.client); err != nil {
		t.Fatal(err)
	}
	original.client.SetRoomID(r.ID())
	other.client.SetRoomID(r.ID())

	rng := game.NewRNGSource(1)
	if _, err := r.CreateGame(rng.Next()); err != nil {
		t.Fatal(err)
	}
	g := r.Game()
	g.PlayerReady(original.client)
	g.PlayerReady(other.client)
	if err := r.BeginPlay(); err != nil {
		t.Fatal(err)
	}

	// original drops mid-game with only one survivor left: reconnect window.
	original.teardown()
	if original.client.State() != client.StateDisconnectedPending {
		t.Fatalf("expected DISCONNECTED_PENDING, got %v", original.client.State())
	}
	readLine(t, otherPeer) // PLAYER_DISCONNECTED broadcast

	reconnecting, _ := newTestSession(t, 3, clients, rooms)
	closed := reconnecting.dispatch(protocol.Message{Command: protocol.CmdReconnect, Params: "1"})
	if closed {
		t.Fatal("RECONNECT should not close the new session")
	}

	if reconnecting.client.State() != client.StateInGame {
		t.Errorf("expected the reconnected client resolved to StateInGame, got %v", reconnecting.client.State())
	}
	if reconnecting.client.IsDisconnected() {
		t.Error("expected the reconnected client no longer marked disconnected")
	}
	if found := clients.FindByID(1); found != reconnecting.client {
		t.Error("expected FindByID(1) to now resolve to the reconnected client")
	}
	if clients.FindByID(3) != nil {
		t.Error("expected the reconnecting session's old slot vacated by Replace")
	}
}
