// Package httpapi exposes the records service, learner draft slots and the
// course progress feed over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/drafts"
	"github.com/p-n-ai/pai-lesson/internal/lesson/plan"
	"github.com/p-n-ai/pai-lesson/internal/lesson/submission"
	"github.com/p-n-ai/pai-lesson/internal/records"
)

const (
	userHeader   = "X-User-ID"
	maxBodyBytes = 1 << 20
	checkTimeout = 2 * time.Second
)

// HealthCheck is a named readiness probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// DraftStores returns the draft store for a learner.
type DraftStores func(userID string) drafts.Store

// Option configures a Server.
type Option func(*Server)

// WithDrafts enables the draft and position endpoints.
func WithDrafts(fn DraftStores) Option {
	return func(s *Server) {
		s.drafts = fn
	}
}

// WithHealthChecks adds readiness probes run by /readyz.
func WithHealthChecks(checks ...HealthCheck) Option {
	return func(s *Server) {
		s.checks = append(s.checks, checks...)
	}
}

// Server serves the lesson API.
type Server struct {
	svc     *records.Service
	hub     *Hub
	drafts  DraftStores
	checks  []HealthCheck
	deriver plan.Deriver
}

// New creates a Server. hub may be nil, which disables the progress feed.
func New(svc *records.Service, hub *Hub, opts ...Option) *Server {
	s := &Server{svc: svc, hub: hub}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /modules/{moduleID}/fields", s.handleFields)
	mux.HandleFunc("GET /modules/{moduleID}/plan", s.handlePlan)
	mux.HandleFunc("GET /modules/{moduleID}/assignment-submission", s.withUser(s.handleGetSubmission))
	mux.HandleFunc("POST /modules/{moduleID}/assignment-submission", s.withUser(s.handleSubmit))
	mux.HandleFunc("POST /modules/{moduleID}/complete", s.withUser(s.handleComplete))
	mux.HandleFunc("GET /modules/{moduleID}/submissions.xlsx", s.handleExport)
	mux.HandleFunc("GET /courses/{courseID}/progress", s.withUser(s.handleCourseProgress))

	if s.drafts != nil {
		mux.HandleFunc("GET /modules/{moduleID}/draft", s.withUser(s.handleGetDraft))
		mux.HandleFunc("PUT /modules/{moduleID}/draft", s.withUser(s.handlePutDraft))
		mux.HandleFunc("GET /modules/{moduleID}/position", s.withUser(s.handleGetPosition))
		mux.HandleFunc("PUT /modules/{moduleID}/position", s.withUser(s.handlePutPosition))
	}
	if s.hub != nil {
		mux.HandleFunc("GET /courses/{courseID}/progress/ws", s.withUser(s.handleProgressFeed))
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			slog.Warn("readiness check failed", "check", c.Name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"check":  c.Name,
			})
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *Server) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userHeader)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+userHeader+" header")
			return
		}
		next(w, r, userID)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var missing *submission.MissingFieldsError
	switch {
	case errors.As(err, &missing):
		writeJSON(w, http.StatusUnprocessableEntity, missing)
	case errors.Is(err, records.ErrUnknownModule), errors.Is(err, records.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
