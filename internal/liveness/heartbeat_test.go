package liveness

import (
	"testing"
	"time"

	"github.com/adamvoss/pexeso-server/internal/client"
	"github.com/adamvoss/pexeso-server/internal/logging"
)

type fakeTransport struct {
	sent   []string
	closed bool
}

func (t *fakeTransport) Send(line string) error {
	t.sent = append(t.sent, line)
	return nil
}
func (t *fakeTransport) Close() error {
	t.closed = true
	return nil
}
func (t *fakeTransport) RemoteAddr() string { return "fake" }

func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(logging.Config{Level: "error", Format: "text", Service: "test"})
	if err != nil {
		t.Fatal(err)
	}
	return logger
}

func TestHeartbeatPingsStaleClients(t *testing.T) {
	reg := client.NewRegistry(2)
	tr := &fakeTransport{}
	c := client.New(1, tr, "trace")
	c.SetState(client.StateInLobby)
	c.MarkPongReceived(time.Now().Add(-2 * PongWaitInterval))
	reg.Add(c)

	hb := NewHeartbeat(reg, newTestLogger(t))
	hb.sweep()

	if len(tr.sent) != 1 {
		t.Fatalf("expected exactly one PING sent, got %d", len(tr.sent))
	}
	if !c.WaitingForPong() {
		t.Error("expected the client to be marked waiting for a pong")
	}
}

func TestHeartbeatSkipsClientsAlreadyWaiting(t *testing.T) {
	reg := client.NewRegistry(2)
	tr := &fakeTransport{}
	c := client.New(1, tr, "trace")
	c.SetState(client.StateInLobby)
	c.MarkPongReceived(time.Now().Add(-2 * PongWaitInterval))
	c.MarkPingSent(time.Now())
	reg.Add(c)

	hb := NewHeartbeat(reg, newTestLogger(t))
	hb.sweep()

	if len(tr.sent) != 0 {
		t.Error("expected no PING for a client already awaiting one")
	}
}

func TestHeartbeatSkipsRecentClients(t *testing.T) {
	reg := client.NewRegistry(2)
	tr := &fakeTransport{}
	c := client.New(1, tr, "trace")
	c.SetState(client.StateInLobby)
	reg.Add(c)

	hb := NewHeartbeat(reg, newTestLogger(t))
	hb.sweep()

	if len(tr.sent) != 0 {
		t.Error("expected no PING for a client that just connected")
	}
}

func TestHeartbeatSkipsDisconnectedClients(t *testing.T) {
	reg := client.NewRegistry(2)
	tr := &fakeTransport{}
	c := client.New(1, tr, "trace")
	c.SetState(client.StateInLobby)
	c.MarkPongReceived(time.Now().Add(-2 * PongWaitInterval))
	c.MarkDisconnected(time.Now())
	reg.Add(c)

	hb := NewHeartbeat(reg, newTestLogger(t))
	hb.sweep()

	if len(tr.sent) != 0 {
		t.Error("expected no PING for an already-disconnected client")
	}
}
