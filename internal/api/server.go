// Package api provides the HTTP surface for taskchat: the two chat operations
// plus thin project, user and task routes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fentz26/taskchat/internal/engine"
	"github.com/fentz26/taskchat/internal/failure"
	"github.com/fentz26/taskchat/internal/store"
)

// Version is set at build time via -ldflags.
var Version = "0.1.0"

// Options configures the HTTP server.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server provides the HTTP API.
type Server struct {
	engine *engine.Engine
	store  store.Store
	log    *zap.Logger
	addr   string
	opts   Options
	mux    *http.ServeMux

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// NewServer creates a new HTTP server.
func NewServer(e *engine.Engine, s store.Store, addr string, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 90 * time.Second
	}
	srv := &Server{
		engine: e,
		store:  s,
		log:    log,
		addr:   addr,
		opts:   opts,
		mux:    http.NewServeMux(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	// Chat
	s.mux.HandleFunc("POST /ai/chat", s.handleChat)
	s.mux.HandleFunc("POST /ai/confirm", s.handleConfirm)

	// Projects and users
	s.mux.HandleFunc("GET /projects", s.handleProjectList)
	s.mux.HandleFunc("POST /projects", s.handleProjectCreate)
	s.mux.HandleFunc("GET /users", s.handleUserList)
	s.mux.HandleFunc("POST /users", s.handleUserCreate)

	// Tasks
	s.mux.HandleFunc("GET /tasks", s.handleTaskList)
	s.mux.HandleFunc("GET /tasks/{id}", s.handleTaskGet)
	s.mux.HandleFunc("PATCH /tasks/{id}", s.handleTaskUpdate)
	s.mux.HandleFunc("DELETE /tasks/{id}", s.handleTaskDelete)

	// System
	s.mux.HandleFunc("/health", s.handleHealth)
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.server = srv
	s.mu.Unlock()

	s.log.Info("starting taskchat daemon", zap.String("addr", ln.Addr().String()))
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.closed = true
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		resp.OK = false
		resp.DB = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: msg})
}

// writeFailure maps a turn failure to its status code and plain-language
// message. Raw causes are logged, never returned.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := failure.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: kindName(err), Message: failure.UserMessage(err)})
}

func kindName(err error) string {
	if kind := failure.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "internal"
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
