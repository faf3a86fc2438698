package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/platform"
	"github.com/asheshgoplani/termdeck/internal/procinfo"
	"github.com/asheshgoplani/termdeck/internal/session"
	"github.com/asheshgoplani/termdeck/internal/statedb"
	"github.com/asheshgoplani/termdeck/internal/vterm"
)

// DefaultInputRate is the websocket messages per second accepted from one
// client when Config.InputRate is zero.
const DefaultInputRate = 200

// Config defines runtime options for the web server.
type Config struct {
	ListenAddr string
	ReadOnly   bool
	Token      string
	// InputRate limits inbound websocket messages per connection.
	InputRate int
	// DefaultCols and DefaultRows size sessions opened without a size.
	DefaultCols int
	DefaultRows int
	Version     string
}

// Sessions is the session command surface used by the handlers.
// *session.Manager implements it.
type Sessions interface {
	Open(ctx context.Context, req session.OpenRequest) (string, error)
	Write(id string, p []byte) error
	Resize(id string, cols, rows int) error
	Close(id string) error
	ProcessInfo(ctx context.Context, id string) (procinfo.Info, bool)
	Snapshot(id string) (vterm.Snapshot, error)
	Get(id string) (session.Summary, error)
	Sessions() []session.Summary
}

// History lists journaled sessions. *statedb.StateDB implements it.
type History interface {
	ListSessions(limit int) ([]*statedb.SessionRow, error)
}

// Server wraps an HTTP server exposing sessions over REST, SSE and
// websockets.
type Server struct {
	cfg        Config
	httpServer *http.Server
	sessions   Sessions
	hub        *Hub
	history    History
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer creates a new web server with base routes and middleware. hub
// must be the sink the session manager publishes to; history may be nil.
func NewServer(cfg Config, sessions Sessions, hub *Hub, history History) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8430"
	}
	if cfg.InputRate <= 0 {
		cfg.InputRate = DefaultInputRate
	}
	if cfg.DefaultCols <= 0 {
		cfg.DefaultCols = 80
	}
	if cfg.DefaultRows <= 0 {
		cfg.DefaultRows = 24
	}
	if hub == nil {
		hub = NewHub()
	}

	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		hub:      hub,
		history:  history,
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/events/sessions", s.handleSessionEvents)
	mux.HandleFunc("/ws/session/", s.handleSessionWS)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(mux),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          logging.NewStdLogger(logging.CompWeb, slog.LevelWarn),
	}

	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server and blocks until shutdown or error.
// Returns nil on graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until shutdown.
func (s *Server) Serve(ln net.Listener) error {
	logging.ForComponent(logging.CompWeb).Info("listening",
		slog.String("addr", ln.Addr().String()),
		slog.Bool("read_only", s.cfg.ReadOnly),
		slog.Bool("token", s.cfg.Token != ""))
	err := s.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	// Long-lived handlers (SSE/WS) watch the base context.
	s.cancelBase()

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}

	// Hijacked websocket connections are not tracked by Shutdown; force
	// close so Ctrl+C exits promptly.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
		return nil
	}
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"version":  s.cfg.Version,
		"platform": platform.Detect().String(),
		"pty":      platform.SupportsPTY(),
		"readOnly": s.cfg.ReadOnly,
		"sessions": len(s.sessions.Sessions()),
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.ForComponent(logging.CompWeb).Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) String() string {
	return fmt.Sprintf("web-server(addr=%s, readOnly=%t)", s.cfg.ListenAddr, s.cfg.ReadOnly)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}

// writeSessionError maps session errors onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
	case errors.Is(err, session.ErrInvalidSize):
		writeAPIError(w, http.StatusBadRequest, "INVALID_SIZE", err.Error())
	case errors.Is(err, session.ErrNoGrid):
		writeAPIError(w, http.StatusConflict, "NO_GRID", "session is in passthrough mode")
	case errors.Is(err, session.ErrCreation):
		writeAPIError(w, http.StatusInternalServerError, "CREATE_FAILED", err.Error())
	case errors.Is(err, session.ErrResize):
		writeAPIError(w, http.StatusInternalServerError, "RESIZE_FAILED", err.Error())
	case errors.Is(err, session.ErrIO):
		writeAPIError(w, http.StatusInternalServerError, "IO_FAILED", err.Error())
	case errors.Is(err, session.ErrShutdown):
		writeAPIError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "server is shutting down")
	default:
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
