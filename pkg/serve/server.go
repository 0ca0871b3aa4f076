// Package serve exposes the support chat over HTTP and WebSocket, together
// with session and ticket endpoints and an optional assistant relay.
package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/holon-run/supportchat/pkg/assistant"
	"github.com/holon-run/supportchat/pkg/chat"
	holonlog "github.com/holon-run/supportchat/pkg/log"
	"github.com/holon-run/supportchat/pkg/logs/redact"
	"github.com/holon-run/supportchat/pkg/session"
	"github.com/holon-run/supportchat/pkg/ticket"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"

	maxBodyBytes = 1 << 20
)

// Turner runs one chat turn. *chat.Orchestrator implements it.
type Turner interface {
	HandleTurn(ctx context.Context, turn chat.Turn) (*chat.Reply, error)
}

// SessionStore is the session persistence used by the chat and session
// routes. *session.Store implements it.
type SessionStore interface {
	Create(ctx context.Context) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	List(ctx context.Context) ([]session.Session, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context, id string) (*session.Session, error)
	RecordTurn(ctx context.Context, id, threadID string, user, reply session.Message) (*session.Session, error)
}

// Config configures a Server.
type Config struct {
	Addr string
	Chat Turner
	// Policy classifies replies before they are returned; nil never flags.
	Policy chat.Policy
	// Sessions enables the /sessions routes and sessionId on /chat.
	Sessions SessionStore
	// Tickets enables the /tickets routes.
	Tickets ticket.Store
	// Relay enables the /assistant routes, forwarding to this transport.
	Relay            assistant.Transport
	RelayAssistantID string
	RelayToken       string
	// AllowedOrigins restricts WebSocket upgrades; empty allows same-origin only.
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	Redactor        *redact.Redactor
	Now             func() time.Time
}

// Server is the HTTP front end.
type Server struct {
	cfg      Config
	policy   chat.Policy
	redactor *redact.Redactor
	now      func() time.Time
	upgrader websocket.Upgrader
	handler  http.Handler
	server   *http.Server
}

// New builds a Server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Chat == nil {
		return nil, fmt.Errorf("chat handler is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		cfg:      cfg,
		policy:   cfg.Policy,
		redactor: cfg.Redactor,
		now:      cfg.Now,
	}
	if s.policy == nil {
		s.policy = chat.Annotate(nil)
	}
	if s.redactor == nil {
		s.redactor = redact.New(redact.Config{})
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /chat/ws", s.handleChatWS)
	if cfg.Sessions != nil {
		mux.HandleFunc("POST /sessions", s.handleCreateSession)
		mux.HandleFunc("GET /sessions", s.handleListSessions)
		mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
		mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
		mux.HandleFunc("POST /sessions/{id}/clear", s.handleClearSession)
	}
	if cfg.Tickets != nil {
		mux.HandleFunc("POST /tickets", s.handleCreateTicket)
		mux.HandleFunc("GET /tickets/{id}", s.handleGetTicket)
	}
	if cfg.Relay != nil {
		s.registerRelay(mux)
	}

	s.handler = s.logRequests(mux)
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	holonlog.Info("support chat server listening", "addr", ln.Addr().String(),
		"sessions", s.cfg.Sessions != nil, "tickets", s.cfg.Tickets != nil, "relay", s.cfg.Relay != nil)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		holonlog.Info("shutting down support chat server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   s.now().UTC().Format(time.RFC3339Nano),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack hands the connection to the WebSocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		holonlog.Debug("http request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		holonlog.Warn("failed to write response", "error", err)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
