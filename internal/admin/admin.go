// Package admin exposes the server's loopback-only operational surface:
// liveness/readiness probes and Prometheus metrics, plus a debug endpoint
// listing rooms. None of this is part of spec.md's client-facing protocol —
// it is the ambient operational surface every service in the example pack
// carries, grounded on the teacher's internal/api package (health.go's
// HealthHandler, registered via gorilla/mux) generalized from an
// HTTP-and-WebSocket game server's admin routes to this TCP server's.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adamvoss/pexeso-server/internal/client"
	"github.com/adamvoss/pexeso-server/internal/logging"
	"github.com/adamvoss/pexeso-server/internal/room"
)

// Metrics are the Prometheus gauges the admin surface publishes, sampled on
// every scrape from the live client/room registries rather than updated
// incrementally — cheap enough at this server's scale and impossible to let
// drift out of sync with reality.
type Metrics struct {
	ConnectedClients prometheus.Gauge
	ActiveRooms      prometheus.Gauge
	PlayingRooms     prometheus.Gauge
}

// NewMetrics registers the gauges against reg, with every metric name
// prefixed by namespace (e.g. "pexeso" -> "pexeso_connected_clients"). An
// empty namespace registers unprefixed names.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Number of clients currently occupying a registry slot.",
		}),
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of rooms currently in the room registry.",
		}),
		PlayingRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_playing",
			Help:      "Number of rooms whose game is in progress.",
		}),
	}
}

// Server is the admin HTTP surface's own http.Server, wired to the live
// registries so every handler reads current state.
type Server struct {
	httpServer *http.Server
	clients    *client.Registry
	rooms      *room.Registry
	metrics    *Metrics

	quiescing atomic.Bool
}

// New builds the admin surface. addr is typically loopback-only
// (127.0.0.1:<port>) — this endpoint is never meant to be reachable from
// outside the host. namespace prefixes every registered metric name.
func New(addr string, clients *client.Registry, rooms *room.Registry, reg *prometheus.Registry, namespace string) *Server {
	s := &Server{
		clients: clients,
		rooms:   rooms,
		metrics: NewMetrics(reg, namespace),
	}
	s.quiescing.Store(true)

	router := mux.NewRouter()
	router.Use(logging.SentryHTTPMiddleware())
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	router.HandleFunc("/debug/rooms", s.handleDebugRooms).Methods(http.MethodGet)
	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.sampleMetrics()
		metricsHandler.ServeHTTP(w, r)
	}).Methods(http.MethodGet)

	s.httpServer = &http.Server{Addr: addr, Handler: router}
	return s
}

// ListenAndServe starts the admin HTTP listener. It blocks until Shutdown
// closes it, matching net/http.Server's own contract.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin HTTP listener.
func (s *Server) Shutdown() error {
	return s.httpServer.Shutdown(context.Background())
}

// MarkReady flips /readyz to 200, once the TCP acceptor is actually
// accepting connections. The server starts quiescing and stays that way
// until its caller calls this.
func (s *Server) MarkReady() {
	s.quiescing.Store(false)
}

// Quiesce marks the server unready without closing anything — handleReady
// starts returning 503 immediately, giving a load balancer a chance to stop
// routing new traffic here before the acceptor and admin listener actually
// go down.
func (s *Server) Quiesce() {
	s.quiescing.Store(true)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReady reports unready while the server is starting up or shutting
// down (Quiesce), or once the client registry is completely full — a new
// connection would be rejected with SERVER_FULL at that point, so a load
// balancer's health check should stop sending new traffic here either way.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.quiescing.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("quiescing"))
		return
	}

	s.sampleMetrics()
	if s.clients.Len() >= s.clients.Capacity() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("full"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

type roomSummary struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	State      string `json:"state"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
	BoardSize  int    `json:"board_size"`
}

// handleDebugRooms lists every non-FINISHED room, sharing the same
// FINISHED-filtering List already does for LIST_ROOMS — a finished room
// still lingers in the registry until it empties out, but it has no business
// showing up on a debug listing of "what's going on right now".
func (s *Server) handleDebugRooms(w http.ResponseWriter, r *http.Request) {
	entries := s.rooms.List()
	summaries := make([]roomSummary, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, roomSummary{
			ID:         e.ID,
			Name:       e.Name,
			State:      e.State,
			Players:    e.Players,
			MaxPlayers: e.MaxPlayers,
			BoardSize:  e.BoardSize,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		http.Error(w, fmt.Sprintf("encode failed: %v", err), http.StatusInternalServerError)
	}
}

func (s *Server) sampleMetrics() {
	s.metrics.ConnectedClients.Set(float64(s.clients.Len()))
	s.metrics.ActiveRooms.Set(float64(s.rooms.Len()))
	s.metrics.PlayingRooms.Set(float64(s.rooms.CountPlaying()))
}
