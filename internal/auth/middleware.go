package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is an unexported type for context keys in this package, so no
// other package can read or shadow the values we store.
type contextKey string

const (
	userIDKey       contextKey = "userID"
	connectionIDKey contextKey = "connectionID"
)

// SessionCookie is the name of the HttpOnly cookie carrying the JWT.
const SessionCookie = "token"

// RequireAuth enforces authentication on protected routes. It accepts the
// session cookie or an "Authorization: Bearer" header, validates the JWT,
// and stores the userID in the request context. Missing or invalid
// credentials get a 401 and the chain stops.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext retrieves the authenticated user's ID from the request
// context. Returns ("", false) if the request is anonymous.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithExtensionIdentity stores the user and connection resolved from an
// API key. Used by the extension key middleware in the handler package.
func WithExtensionIdentity(ctx context.Context, userID, connectionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, connectionIDKey, connectionID)
}

// ConnectionIDFromContext retrieves the extension connection ID set by the
// API-key middleware. Returns ("", false) on session-authenticated requests.
func ConnectionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(connectionIDKey).(string)
	return id, ok && id != ""
}

// extractUserID pulls the JWT from the cookie or the Authorization header
// and validates it.
func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return tokens.Validate(strings.TrimPrefix(header, "Bearer "))
	}

	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}
