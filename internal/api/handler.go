// Package api provides the JSON helpers and the inspection endpoints of the
// coach server.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/interview-coach/internal/domain"
	"github.com/ashureev/interview-coach/internal/identity"
	"github.com/ashureev/interview-coach/internal/interview"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// SessionReader exposes read-only session state.
type SessionReader interface {
	Load(ctx context.Context, key string) (domain.Session, error)
	History(ctx context.Context, user string) (interview.History, error)
}

// Pinger is a dependency checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves health and the caller's own session state.
type Handler struct {
	sessions      SessionReader
	checks        map[string]Pinger
	healthTimeout time.Duration
}

// NewHandler returns a handler. checks are pinged by /health under their
// map key.
func NewHandler(sessions SessionReader, checks map[string]Pinger) *Handler {
	return &Handler{sessions: sessions, checks: checks, healthTimeout: 5 * time.Second}
}

type sessionResponse struct {
	SessionKey string         `json:"session_key"`
	Session    domain.Session `json:"session"`
	Awaiting   int            `json:"awaiting_scores"`
}

// Health returns the health status of the API and its dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.healthTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			slog.Error("Health check failed", "check", name, "error", err)
			status["status"] = "degraded"
			checks[name] = "unreachable"
			statusCode = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	JSON(w, statusCode, status)
}

// Session returns the caller's session.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	sender := identity.SenderFromContext(r.Context())
	key := domain.SessionKey(identity.SessionIDFromContext(r.Context()), sender)

	s, err := h.sessions.Load(r.Context(), key)
	if err != nil {
		slog.Error("failed to load session", "session_key", key, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	JSON(w, http.StatusOK, sessionResponse{SessionKey: key, Session: s, Awaiting: len(s.Outstanding)})
}

// History returns the caller's recorded history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	sender := identity.SenderFromContext(r.Context())
	hist, err := h.sessions.History(r.Context(), sender)
	if err != nil {
		slog.Error("failed to load history", "user_id", sender, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	JSON(w, http.StatusOK, hist)
}

// RegisterHealth registers the health check route.
func (h *Handler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// RegisterRoutes registers the inspection routes. They expect
// identity.Middleware upstream.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/session", h.Session)
	r.Get("/api/history", h.History)
}
