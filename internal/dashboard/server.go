package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chr1sbest/lotrunner/internal/control"
	"github.com/chr1sbest/lotrunner/internal/logger"
	"github.com/chr1sbest/lotrunner/internal/runstate"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

// portProbeRange is how many consecutive ports Start tries when the
// configured one is taken, matching operators running several workers on
// one machine.
const portProbeRange = 6

// Server hosts the control endpoint, the state stream, and the UI.
type Server struct {
	signals *control.Signals
	state   *runstate.State
	hub     *Hub
	log     logger.Logger
	port    int

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
	status   ServerStatus
}

// NewServer prepares a dashboard on the given starting port.
func NewServer(port int, signals *control.Signals, state *runstate.State, hub *Hub, log logger.Logger) *Server {
	return &Server{
		signals: signals,
		state:   state,
		hub:     hub,
		log:     log,
		port:    port,
		status:  StatusStarting,
	}
}

// Start binds a TCP listener and begins serving. When the configured
// port is busy it walks forward a few ports before giving up.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("dashboard: server already started")
	}

	var listener net.Listener
	var err error
	for offset := 0; offset < portProbeRange; offset++ {
		addr := fmt.Sprintf("127.0.0.1:%d", s.port+offset)
		listener, err = net.Listen("tcp", addr)
		if err == nil {
			break
		}
	}
	if listener == nil {
		return fmt.Errorf("dashboard: no free port in %d-%d: %w", s.port, s.port+portProbeRange-1, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/control", s.handleControl)
	mux.HandleFunc("/api/state", s.handleState)

	server := &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: the state stream stays open for the whole run.
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Dashboard serve error", logger.F("error", err))
		}
	}()
	s.log.Info("Dashboard listening", logger.F("url", "http://"+listener.Addr().String()))
	return nil
}

// Shutdown stops accepting new connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
