// Package server is the TCP acceptor and process lifecycle: it owns the
// listening socket, assigns each accepted connection its client_id and a
// Session, and drives the startup/shutdown sequencing spec.md §4.8
// describes. Generalized from the teacher's Application struct
// (backend/main.go) — the same Initialize/Run/gracefulShutdown shape, with
// an http.Server's ListenAndServe/Shutdown replaced by a raw net.Listener's
// Accept loop, since this server's external contract is a TCP socket, not
// an HTTP one.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adamvoss/pexeso-server/internal/client"
	"github.com/adamvoss/pexeso-server/internal/config"
	"github.com/adamvoss/pexeso-server/internal/game"
	"github.com/adamvoss/pexeso-server/internal/liveness"
	"github.com/adamvoss/pexeso-server/internal/logging"
	"github.com/adamvoss/pexeso-server/internal/protocol"
	"github.com/adamvoss/pexeso-server/internal/room"
	"github.com/adamvoss/pexeso-server/internal/session"
)

// Flush and drain windows for graceful shutdown. spec.md §4.8 asks for a
// brief pause after the SERVER_SHUTDOWN broadcast (so writer goroutines get
// a chance to flush it to the wire) and a longer one after forcing every
// transport closed (so session goroutines have time to notice and exit
// their read loops before the process tears down the registries under
// them).
const (
	shutdownFlushWait = 1 * time.Second
	shutdownDrainWait = 3 * time.Second
)

// Server is one running instance of the acceptor.
type Server struct {
	cfg      *config.Config
	logger   *logging.Logger
	listener net.Listener

	clients *client.Registry
	rooms   *room.Registry
	rng     *game.RNGSource

	heartbeat *liveness.Heartbeat
	reaper    *liveness.Reaper

	nextClientID int64
	running      atomic.Bool

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	sessions       sync.WaitGroup
}

// New opens the listening socket and builds every subsystem the acceptor
// wires together, per cfg. It does not start accepting connections —
// call Run for that.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.IP, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", addr, err)
	}

	clients := client.NewRegistry(cfg.MaxClients)
	rooms := room.NewRegistry(cfg.MaxRooms)

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := game.NewRNGSource(seed)

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:            cfg,
		logger:         logger,
		listener:       listener,
		clients:        clients,
		rooms:          rooms,
		rng:            rng,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
	s.heartbeat = liveness.NewHeartbeat(clients, logger)
	s.reaper = liveness.NewReaper(clients, rooms, logger)
	return s, nil
}

// Addr reports the socket's bound address, useful when cfg.Port is 0 (an
// ephemeral port assigned by the OS, e.g. in tests).
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Clients exposes the client registry, for the admin surface's metrics.
func (s *Server) Clients() *client.Registry { return s.clients }

// Rooms exposes the room registry, for the admin surface's metrics.
func (s *Server) Rooms() *room.Registry { return s.rooms }

// Run starts the liveness subsystems and the accept loop. It blocks until
// Shutdown closes the listener, at which point it returns nil.
func (s *Server) Run() error {
	s.heartbeat.Start()
	s.reaper.Start()
	s.running.Store(true)

	s.logger.Info("server listening", "addr", s.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return nil
			}
			s.logger.Warn("accept error", "err", err)
			continue
		}
		s.accept(conn)
	}
}

// accept registers a fresh Client for conn and spawns its Session, or
// rejects the connection outright if the client registry is already at
// capacity.
func (s *Server) accept(conn net.Conn) {
	if s.clients.Len() >= s.clients.Capacity() {
		conn.Write([]byte(protocol.Error(protocol.ErrServerFull, "")))
		conn.Close()
		return
	}

	id := int(atomic.AddInt64(&s.nextClientID, 1))
	sess := session.New(conn, id, s.clients, s.rooms, s.rng, s.logger, s.shutdownCtx)

	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		sess.Run()
	}()
}

// Shutdown runs spec.md §4.8's exact teardown ordering: stop accepting,
// warn every connected client, give writers a moment to flush that warning,
// force every transport closed, stop the liveness subsystems (heartbeat
// before reaper, so the reaper doesn't race a heartbeat-triggered
// disconnect into a half-torn-down registry), give session goroutines a
// moment to notice and exit, then free every room and clear the client
// registry.
func (s *Server) Shutdown() {
	s.running.Store(false)
	s.shutdownCancel()
	s.listener.Close()

	for _, c := range s.clients.Snapshot() {
		c.Send(protocol.ServerShutdown("server is shutting down"))
	}
	time.Sleep(shutdownFlushWait)

	for _, c := range s.clients.Snapshot() {
		c.Transport().Close()
	}

	s.heartbeat.Stop()
	s.reaper.Stop()

	time.Sleep(shutdownDrainWait)
	s.sessions.Wait()

	for _, r := range s.rooms.Snapshot() {
		s.rooms.Destroy(r.ID())
	}
	for _, c := range s.clients.Snapshot() {
		s.clients.Remove(c)
	}

	s.logger.Info("server shutdown complete")
}
