package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/felixgeelhaar/rehearse/internal/config"
	"github.com/felixgeelhaar/rehearse/internal/events"
	"github.com/felixgeelhaar/rehearse/internal/session"
)

// Server represents the rehearse daemon HTTP server
type Server struct {
	cfg      *config.LocalConfig
	server   *http.Server
	router   *http.ServeMux
	services *Services
	version  string
	started  time.Time
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config  *config.LocalConfig
	Version string

	// Optional overrides, mostly for tests
	Evaluator session.Evaluator
	Publisher events.Publisher
	Logger    *slog.Logger
}

// NewServer creates a new daemon server
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		cfg.Config = config.DefaultLocalConfig()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	services, err := NewServices(ctx, ServicesConfig{
		Config:    cfg.Config,
		Evaluator: cfg.Evaluator,
		Publisher: cfg.Publisher,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg.Config,
		router:   http.NewServeMux(),
		services: services,
		version:  cfg.Version,
		started:  time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Config.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Long enough for a question plus an evaluation call.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.HandleFunc("GET /v1/sessions", s.handleListSessions)

	// Sessions, also under /api for browser clients
	for _, prefix := range []string{"", "/api"} {
		s.router.HandleFunc("POST "+prefix+"/session", s.handleCreateSession)
		s.router.HandleFunc("GET "+prefix+"/session/{id}", s.handleGetSession)
		s.router.HandleFunc("GET "+prefix+"/session/{id}/next", s.handleNextQuestion)
		s.router.HandleFunc("POST "+prefix+"/session/{id}/answer", s.handleSubmitAnswer)
		s.router.HandleFunc("GET "+prefix+"/session/{id}/feedback", s.handleFeedback)
		s.router.HandleFunc("POST "+prefix+"/session/{id}/end", s.handleEndSession)
	}
}

// Handler returns the router wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = loggingMiddleware(h)
	h = tracingMiddleware(h)
	h = bodyLimitMiddleware(s.cfg.Daemon.MaxBodyBytes)(h)
	h = corsMiddleware(s.cfg.Daemon.CORSOrigins)(h)
	h = correlationIDMiddleware(h)
	return recoveryMiddleware(h)
}

// Services exposes the backend so other surfaces can share it
func (s *Server) Services() *Services {
	return s.services
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting rehearse daemon",
		"addr", s.server.Addr,
		"llm_providers", s.services.Registry.List(),
		"evaluator", s.services.Evaluator,
	)
	return s.server.ListenAndServe()
}

// Serve accepts connections on ln
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("starting rehearse daemon", "addr", ln.Addr().String(), "evaluator", s.services.Evaluator)
	return s.server.Serve(ln)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")

	err := s.server.Shutdown(ctx)
	if cerr := s.services.Close(); cerr != nil {
		slog.Warn("failed to close services", "error", cerr)
	}
	return err
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":         "running",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"llm_providers":  s.services.Registry.List(),
		"evaluator":      s.services.Evaluator,
		"sessions":       len(s.services.Sessions.List(r.Context())),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"sessions": s.services.Sessions.List(r.Context()),
	})
}

// Session handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	// An empty body selects all defaults.
	var req session.Config
	if !s.decodeBody(w, r, &req) {
		return
	}

	sess, err := s.services.Sessions.Create(r.Context(), req)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"session": sess})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.services.Sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"session": sess})
}

func (s *Server) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	result, err := s.services.Sessions.NextQuestion(r.Context(), r.PathValue("id"))
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	reply, err := s.services.Sessions.SubmitAnswer(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, reply)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	report, err := s.services.Sessions.Feedback(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			s.textResponse(w, http.StatusNotFound, "Session not found")
			return
		}
		s.textResponse(w, http.StatusInternalServerError, "Failed to build feedback")
		return
	}

	s.textResponse(w, http.StatusOK, report)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.services.Sessions.End(r.Context(), r.PathValue("id"))
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"session": sess})
}

// handleServiceError maps session errors to HTTP responses
func (s *Server) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		s.jsonError(w, http.StatusNotFound, "session not found", nil)
	case errors.Is(err, session.ErrNoActiveQuestion):
		s.jsonError(w, http.StatusBadRequest, "no active question", nil)
	case errors.Is(err, session.ErrSessionFinished):
		s.jsonError(w, http.StatusConflict, "session is finished", nil)
	case errors.Is(err, session.ErrInvalidConfig):
		s.jsonError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, session.ErrQuestionUnavailable):
		s.jsonError(w, http.StatusBadGateway, "could not generate a question", err)
	default:
		s.jsonError(w, http.StatusInternalServerError, "internal error", err)
	}
}

// Helper methods

// decodeBody reads an optional JSON body into v. It writes the error response
// and returns false when the body is malformed or too large.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return true
	case errors.As(err, &tooLarge):
		s.jsonError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
	default:
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
	}
	return false
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

func (s *Server) textResponse(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
