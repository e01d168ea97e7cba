// Package gateway is the HTTP surface of the session manager: login, chat,
// logout, the active-users view, and a websocket stream of session events.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prasetya/wisma/internal/metrics"
	"github.com/prasetya/wisma/internal/requestid"
	"github.com/prasetya/wisma/pkg/session"
)

// Service is what the gateway needs from the session layer. *session.Manager
// satisfies it.
type Service interface {
	Login(ctx context.Context, p session.LoginParams) error
	Chat(ctx context.Context, username, message string) (string, error)
	Logout(username string)
	ListActiveUsers() []session.ActiveUser
	Describe(username string) (session.SessionInfo, error)
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	Service         Service
	Logger          zerolog.Logger
}

// Server is the HTTP gateway.
type Server struct {
	addr            string
	allowedOrigins  []string
	shutdownTimeout time.Duration
	service         Service
	server          *http.Server
	upgrader        websocket.Upgrader
	broadcaster     *EventBroadcaster
	logger          zerolog.Logger

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlightReqs   sync.WaitGroup
}

// NewServer creates the gateway.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		addr:            fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		allowedOrigins:  cfg.AllowedOrigins,
		shutdownTimeout: cfg.ShutdownTimeout,
		service:         cfg.Service,
		broadcaster:     NewEventBroadcaster(cfg.Logger),
		logger:          cfg.Logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return s.originAllowed(r.Header.Get("Origin")) },
	}
	return s, nil
}

// Broadcaster exposes the event broadcaster, so the session manager's event
// hook can be pointed at it.
func (s *Server) Broadcaster() *EventBroadcaster {
	return s.broadcaster
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /users/active", s.handleActiveUsers)
	mux.HandleFunc("GET /users/{username}/config", s.handleUserConfig)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{Message: "ok"})
	})
	return s.withMiddleware(mux)
}

// Start begins serving. Non-blocking; errors after startup are logged.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	s.logger.Info().Str("addr", s.addr).Msg("Starting gateway")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.broadcaster.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown gateway: %w", err)
	}

	s.logger.Info().Msg("Gateway stopped")
	return nil
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		draining := s.isShuttingDown
		s.shutdownMu.RUnlock()
		if draining {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "server is shutting down"})
			return
		}

		s.applyCORS(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = requestid.New()
		}
		w.Header().Set("X-Request-Id", id)
		r = r.WithContext(requestid.With(r.Context(), id))

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()

		start := time.Now()
		next.ServeHTTP(w, r)
		lg := requestid.Logger(r.Context(), s.logger)
		lg.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("Request handled")
	})
}

func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !s.originAllowed(origin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
