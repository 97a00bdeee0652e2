//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/interview-coach/internal/domain"
	"github.com/ashureev/interview-coach/internal/identity"
	"github.com/ashureev/interview-coach/internal/interview"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

type fakeSessions struct {
	sessions map[string]domain.Session
	history  map[string]interview.History
	err      error
}

func (f *fakeSessions) Load(_ context.Context, key string) (domain.Session, error) {
	return f.sessions[key], f.err
}

func (f *fakeSessions) History(_ context.Context, user string) (interview.History, error) {
	return f.history[user], f.err
}

type pingFunc func(context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func router(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.RegisterHealth(r)
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(true))
		h.RegisterRoutes(r)
	})
	return r
}

func TestHealthReportsDegradedStore(t *testing.T) {
	t.Parallel()

	h := NewHandler(&fakeSessions{}, map[string]Pinger{
		"store": pingFunc(func(context.Context) error { return errors.New("locked") }),
	})
	w := httptest.NewRecorder()
	router(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" || body.Checks["store"] != "unreachable" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestSessionUsesCallerKey(t *testing.T) {
	t.Parallel()

	sessions := &fakeSessions{sessions: map[string]domain.Session{
		"session:tab-1": {Persona: domain.PersonaHR, Outstanding: []string{"r1"}},
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set(identity.SenderHeaderName, "agent1")
	req.Header.Set(identity.SessionHeaderName, "tab-1")
	w := httptest.NewRecorder()
	router(NewHandler(sessions, nil)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got sessionResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SessionKey != "session:tab-1" || got.Session.Persona != domain.PersonaHR || got.Awaiting != 1 {
		t.Fatalf("unexpected response %+v", got)
	}
}

func TestHistoryError(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set(identity.SenderHeaderName, "agent1")
	w := httptest.NewRecorder()
	router(NewHandler(&fakeSessions{err: errors.New("boom")}, nil)).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
