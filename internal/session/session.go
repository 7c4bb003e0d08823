// Package session drives one connected client's request/response loop: it
// reads protocol lines off the socket, dispatches them to handlers that
// mutate the client/room/game state, and runs the teardown/reconnect-window
// protocol on disconnect. Grounded on the teacher's internal/ws/client.go
// readPump/writePump split (one goroutine owns all reads, one owns all
// writes, connected by a buffered channel) generalized from WebSocket frames
// to newline-terminated ASCII lines over net.Conn, and
// internal/ws/handlers.go's MessageHandler.HandleMessage switch-dispatch,
// generalized from JSON message types to spec.md §6's command table.
package session

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net"
	"time"

	"github.com/adamvoss/pexeso-server/internal/client"
	"github.com/adamvoss/pexeso-server/internal/game"
	"github.com/adamvoss/pexeso-server/internal/logging"
	"github.com/adamvoss/pexeso-server/internal/protocol"
	"github.com/adamvoss/pexeso-server/internal/room"
)

// Session is one accepted connection's handler. It owns exactly one
// *client.Client for its whole lifetime — RECONNECT mutates that Client's
// identity fields in place (see reconnect.go) rather than swapping the
// pointer, so the registry slot transplant spec.md §4.6 describes is the
// only place a Client record changes hands.
type Session struct {
	conn      net.Conn
	transport client.Transport
	reader    *protocol.Reader

	client *client.Client

	clients *client.Registry
	rooms   *room.Registry
	rng     *game.RNGSource
	logger  *logging.Logger

	shutdownCtx context.Context
}

// New builds a Session for an already-accepted connection, registers its
// freshly minted Client (state CONNECTED) in clients, and returns it ready
// for Run. id is the monotonically assigned client_id spec.md §3 requires
// survive a reconnect; the acceptor is responsible for generating it.
func New(conn net.Conn, id int, clients *client.Registry, rooms *room.Registry, rng *game.RNGSource, logger *logging.Logger, shutdownCtx context.Context) *Session {
	transport := NewTransport(conn)
	c := client.New(id, transport, newTraceID())

	s := &Session{
		conn:        conn,
		transport:   transport,
		reader:      protocol.NewReader(bufio.NewReader(conn)),
		client:      c,
		clients:     clients,
		rooms:       rooms,
		rng:         rng,
		logger:      logger,
		shutdownCtx: shutdownCtx,
	}
	clients.Add(c)
	return s
}

func newTraceID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(buf)
}

// Client exposes the session's client record, for the acceptor's shutdown
// broadcast and metrics.
func (s *Session) Client() *client.Client { return s.client }

// Run drives the read loop until the connection closes or an unrecoverable
// read error occurs, then executes the disconnect policy.
func (s *Session) Run() {
	s.logger.LogProtocolEvent(logging.ProtocolEventFields{
		EventType: "connected",
		ClientID:  s.client.ID(),
		TraceID:   s.client.TraceID(),
		RemoteIP:  s.transport.RemoteAddr(),
	})

	for {
		line, err := s.reader.ReadLine()
		if err != nil {
			if errors.Is(err, protocol.ErrLineTooLong) {
				s.logger.Warn("oversized line dropped", "client_id", s.client.ID(), "trace_id", s.client.TraceID())
				if s.client.IncrementInvalidMessageCount() {
					s.client.Send(protocol.Error(protocol.ErrInvalidSyntax, "line too long"))
					break
				}
				s.client.Send(protocol.Error(protocol.ErrInvalidSyntax, "line too long"))
				continue
			}
			break
		}

		s.client.Touch(time.Now())

		msg := protocol.ParseLine(line)
		if msg.Command == "" {
			continue
		}

		if s.dispatch(msg) {
			break
		}
	}

	s.teardown()
}

// dispatch routes one parsed message to its handler. It reports true when
// the handler closed the session (error threshold reached).
func (s *Session) dispatch(msg protocol.Message) (closed bool) {
	s.logger.LogProtocolEvent(logging.ProtocolEventFields{
		EventType: "command",
		ClientID:  s.client.ID(),
		TraceID:   s.client.TraceID(),
		RoomID:    s.client.RoomID(),
		Command:   msg.Command,
	})

	switch msg.Command {
	case protocol.CmdHello:
		return s.handleHello(msg)
	case protocol.CmdListRooms:
		return s.handleListRooms(msg)
	case protocol.CmdCreateRoom:
		return s.handleCreateRoom(msg)
	case protocol.CmdJoinRoom:
		return s.handleJoinRoom(msg)
	case protocol.CmdLeaveRoom:
		return s.handleLeaveRoom(msg)
	case protocol.CmdStartGame:
		return s.handleStartGame(msg)
	case protocol.CmdReady:
		return s.handleReady(msg)
	case protocol.CmdFlip:
		return s.handleFlip(msg)
	case protocol.CmdReconnect:
		return s.handleReconnect(msg)
	case protocol.CmdPong:
		return s.handlePong(msg)
	default:
		return s.sendError(protocol.ErrInvalidCommand, msg.Command)
	}
}

// sendError emits ERROR on the wire and, if the code counts as a protocol
// error (spec.md §7), increments the error counter and reports whether the
// session must now close.
func (s *Session) sendError(code, detail string) (closed bool) {
	s.client.Send(protocol.Error(code, detail))
	if !protocol.CountsAsProtocolError(code) {
		return false
	}
	return s.client.IncrementInvalidMessageCount()
}

// currentRoom resolves the session's current room from its Client's RoomID
// back-reference, or nil if it has none.
func (s *Session) currentRoom() *room.Room {
	id := s.client.RoomID()
	if id == 0 {
		return nil
	}
	r, ok := s.rooms.FindByID(id)
	if !ok {
		return nil
	}
	return r
}
