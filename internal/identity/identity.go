// Package identity resolves the sender of a chat request.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/interview-coach/internal/domain"
)

const (
	AnonCookieName    = "coach_anon_id"
	SenderHeaderName  = "X-Sender-ID"
	SessionHeaderName = "X-Session-ID"
	anonCookieMaxAge  = 30 * 24 * time.Hour
)

type contextKey int

const (
	senderKey contextKey = iota
	sessionIDKey
)

var (
	anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	// Agent addresses and other opaque ids supplied by a trusted front end.
	senderPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,256}$`)
)

// SenderFromContext returns the resolved sender, or "".
func SenderFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(senderKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext returns the explicit session id, or "" when the
// request carried none.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSender returns ctx carrying sender and session id.
func WithSender(ctx context.Context, sender, sessionID string) context.Context {
	ctx = context.WithValue(ctx, senderKey, sender)
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func generateAnonID() string {
	return "anon_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) string {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value
	}
	id := generateAnonID()
	setAnonCookie(w, id, isDev)
	return id
}

func senderFromRequest(w http.ResponseWriter, r *http.Request, isDev bool) (string, bool) {
	if h := strings.TrimSpace(r.Header.Get(SenderHeaderName)); h != "" {
		if !senderPattern.MatchString(h) {
			return "", false
		}
		return h, true
	}
	return getOrCreateAnonID(w, r, isDev), true
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return domain.SanitizeSessionID(sid)
}

// Middleware resolves the sender from the X-Sender-ID header, falling back
// to an anonymous per-device cookie, and the optional session id.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sender, ok := senderFromRequest(w, r, isDev)
			if !ok {
				http.Error(w, `{"error":"invalid sender id"}`, http.StatusBadRequest)
				return
			}
			ctx := WithSender(r.Context(), sender, sessionIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
