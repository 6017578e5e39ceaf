package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/skagent/internal/metrics"
	"github.com/harun/skagent/pkg/events"
	"github.com/harun/skagent/pkg/runstate"
	"github.com/rs/zerolog"
)

// Runner executes one run; runtime.Service satisfies it
type Runner interface {
	Run(ctx context.Context, conversationID, userInput string, sink events.Sink) *runstate.RunState
}

// ProfileFunc returns the profile snapshot reported with a run
type ProfileFunc func(run *runstate.RunState) map[string]string

// Config holds server configuration
type Config struct {
	Host   string
	Port   int
	Runner Runner
	// Profile fills RunResponse.ProfileSnapshot, optional
	Profile ProfileFunc
	// Metrics serves /metrics when set
	Metrics *metrics.Metrics

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // per streamed frame
	RunTimeout      time.Duration // zero means bounded by the request only
	ShutdownTimeout time.Duration

	RequestsPerMinute int
	MaxConcurrent     int

	Logger zerolog.Logger
}

// Server is the HTTP gateway
type Server struct {
	cfg      Config
	limiter  *ConversationLimiter
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	server   *http.Server
	listener net.Listener

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlight       sync.WaitGroup
}

// NewServer creates a gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Profile == nil {
		cfg.Profile = func(*runstate.RunState) map[string]string { return map[string]string{} }
	}

	return &Server{
		cfg:     cfg,
		limiter: NewConversationLimiter(cfg.RequestsPerMinute, cfg.MaxConcurrent),
		logger:  cfg.Logger.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Handler returns the routed handler, also used directly by tests
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/agent/run", s.track(s.handleRun))
	mux.HandleFunc("POST /api/agentstream/run", s.track(s.handleStreamRun))
	mux.HandleFunc("GET /api/agentstream/ws", s.track(s.handleWebSocket))
	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics.Handler())
	}
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start listens and serves in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop refuses new runs, waits for in-flight runs and shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway")

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight runs completed")
	case <-timer.C:
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	case <-ctx.Done():
		s.logger.Warn().Err(ctx.Err()).Msg("Shutdown cancelled, forcing close")
	}

	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown gateway: %w", err)
	}

	s.logger.Info().Msg("Gateway stopped")
	return nil
}

// track counts a request as in flight and rejects it during shutdown
func (s *Server) track(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		s.inFlight.Add(1)
		s.shutdownMu.RUnlock()
		defer s.inFlight.Done()

		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.shutdownMu.RLock()
	shuttingDown := s.isShuttingDown
	s.shutdownMu.RUnlock()

	if shuttingDown {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
