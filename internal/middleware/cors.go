// Package middleware provides HTTP middleware for the coach API.
package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/ashureev/interview-coach/internal/identity"
)

// CORS returns middleware that handles CORS headers. Credentials are only
// allowed when every origin is explicit.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	wildcard := false
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
			break
		}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", identity.SenderHeaderName, identity.SessionHeaderName},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	})
}
