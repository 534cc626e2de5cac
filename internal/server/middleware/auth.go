// Package middleware provides HTTP middleware for authentication.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// clientKey is the context key for the authenticated client name.
const clientKey ContextKey = "client"

// TokenValidator validates bearer tokens.
// This allows the middleware to work with any token service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (ClientGetter, error)
}

// ClientGetter extracts the client name from token claims.
type ClientGetter interface {
	GetClient() string
}

// AuthMiddleware creates middleware that validates bearer tokens and adds the
// client name to the request context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), clientKey, claims.GetClient())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken parses "Bearer <token>", with a case-insensitive scheme.
func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="auditor"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// GetClient returns the authenticated client name from the request context.
func GetClient(r *http.Request) (string, error) {
	client, ok := r.Context().Value(clientKey).(string)
	if !ok {
		return "", fmt.Errorf("client not found in request context")
	}
	return client, nil
}

// WithClient returns a context carrying an authenticated client name.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey, client)
}
