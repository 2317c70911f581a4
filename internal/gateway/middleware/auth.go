// Package middleware provides the gateway's HTTP middleware stack.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tinunadno/stm32-emulator/internal/gateway/config"
)

type contextKey string

const userIDKey contextKey = "user_id"

// UserID returns the authenticated user id attached by RequireAPIKey, or
// the empty string.
func UserID(r *http.Request) string {
	if id, ok := r.Context().Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// Auth handles API key authentication.
type Auth struct {
	cfg *config.AuthConfig
}

// NewAuth returns an authentication middleware for the configured keys.
func NewAuth(cfg *config.AuthConfig) *Auth {
	return &Auth{cfg: cfg}
}

// RequireAPIKey rejects requests without a valid API key, taken from the
// configured header or an Authorization Bearer token.
func (a *Auth) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := a.extractKey(r)
		if apiKey == "" {
			http.Error(w, `{"error":"API key required","status":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if !a.validKey(apiKey) {
			http.Error(w, `{"error":"invalid API key","status":"unauthorized"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userIDForKey(apiKey))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) extractKey(r *http.Request) string {
	if key := r.Header.Get(a.cfg.APIKeyHeader); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func (a *Auth) validKey(apiKey string) bool {
	for _, valid := range a.cfg.ValidAPIKeys {
		if apiKey == valid {
			return true
		}
	}
	return false
}

// userIDForKey derives a stable user id from an API key.
func userIDForKey(apiKey string) string {
	if len(apiKey) < 8 {
		return "user_" + apiKey
	}
	return "user_" + apiKey[len(apiKey)-8:]
}
