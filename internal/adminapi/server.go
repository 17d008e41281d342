// Package adminapi is the node's HTTP admin and debug plane: status, ring
// and schema introspection over JSON. The CQL surface itself is the binary
// protocol in clientproto; this plane exists for operators and tests.
package adminapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mini-cassandra/mini-cassandra/internal/config"
	"github.com/mini-cassandra/mini-cassandra/internal/coordinator"
	"github.com/mini-cassandra/mini-cassandra/internal/gossip"
	"github.com/mini-cassandra/mini-cassandra/internal/partitioner"
)

// Server represents the HTTP admin server.
type Server struct {
	config      *config.Config
	router      *mux.Router
	httpServer  *http.Server
	coordinator *coordinator.Coordinator
	ring        *partitioner.Ring
	membership  *gossip.Membership
	hostID      uuid.UUID
	startTime   time.Time
}

// NewServer creates a new admin server.
func NewServer(cfg *config.Config, coord *coordinator.Coordinator, ring *partitioner.Ring, membership *gossip.Membership) *Server {
	s := &Server{
		config:      cfg,
		router:      mux.NewRouter(),
		coordinator: coord,
		ring:        ring,
		membership:  membership,
		hostID:      uuid.New(),
		startTime:   time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(loggingMiddleware)
	s.router.Use(recoveryMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/admin/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/admin/ring", s.handleRing).Methods("GET")
	s.router.HandleFunc("/admin/schema", s.handleSchema).Methods("GET")
	s.router.HandleFunc("/admin/peers", s.handlePeers).Methods("GET")
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := s.config.AdminAddress()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("admin server on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime duration.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// GetRouter returns the mux router (for testing).
func (s *Server) GetRouter() *mux.Router {
	return s.router
}
