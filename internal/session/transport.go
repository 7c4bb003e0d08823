// Package session drives one connected client's request/response loop: it
// reads protocol lines off the socket, dispatches them to handlers that
// mutate the client/room/game state, and writes responses back out.
// Grounded on the teacher's internal/ws/client.go readPump/writePump split
// (one goroutine owns all reads, one owns all writes, connected by a
// buffered channel) generalized from WebSocket frames to newline-terminated
// ASCII lines over net.Conn.
package session

import (
	"net"
	"sync"
	"time"

	"github.com/adamvoss/pexeso-server/internal/client"
)

// NewTransport adapts conn into a client.Transport, spawning the dedicated
// writer goroutine that serializes every send against the socket.
func NewTransport(conn net.Conn) client.Transport {
	return newConnTransport(conn)
}

const (
	writeQueueSize = 64
	writeWait      = 10 * time.Second
)

// connTransport adapts a net.Conn to client.Transport: Send enqueues a line
// for a dedicated writer goroutine, so the session's read loop, the
// liveness heartbeat, and room broadcasts can all call Send concurrently
// without racing on the socket.
type connTransport struct {
	conn net.Conn

	mu     sync.Mutex
	sendCh chan string
	closed bool
}

func newConnTransport(conn net.Conn) *connTransport {
	t := &connTransport{
		conn:   conn,
		sendCh: make(chan string, writeQueueSize),
	}
	go t.writeLoop()
	return t
}

func (t *connTransport) Send(line string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return net.ErrClosed
	}

	select {
	case t.sendCh <- line:
		t.mu.Unlock()
		return nil
	default:
		t.mu.Unlock()
		// Queue is full: the peer isn't draining. Drop the connection rather
		// than block whichever goroutine (broadcast, heartbeat) called Send.
		t.Close()
		return net.ErrClosed
	}
}

func (t *connTransport) writeLoop() {
	for line := range t.sendCh {
		t.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if _, err := t.conn.Write([]byte(line)); err != nil {
			t.Close()
			return
		}
	}
}

func (t *connTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.sendCh)
	t.mu.Unlock()

	return t.conn.Close()
}

func (t *connTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
