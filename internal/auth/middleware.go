package auth

import (
	"context"
	"net/http"
)

// contextKey is an unexported type for context keys in this package, so no
// other package can read or shadow the registrant ID we stash in the
// request context.
type contextKey string

const registrantIDKey contextKey = "registrantID"

// SessionCookie is the name of the HttpOnly cookie carrying the JWT.
const SessionCookie = "token"

// RequireAuth enforces authentication: it reads the JWT from the session
// cookie, validates it, and stores the registrant ID in the request
// context. Missing or invalid tokens end the chain with 401.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := extractRegistrantID(r, tokens)
			if err != nil {
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), registrantIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth extracts the identity if a valid token is present but never
// blocks the request. Used by /auth/status, which answers both anonymous
// and signed-in callers.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, err := extractRegistrantID(r, tokens); err == nil && id != "" {
				r = r.WithContext(context.WithValue(r.Context(), registrantIDKey, id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegistrantIDFromContext retrieves the authenticated registrant's ID.
// Returns ("", false) for anonymous requests.
func RegistrantIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(registrantIDKey).(string)
	return id, ok && id != ""
}

func extractRegistrantID(r *http.Request, tokens *TokenService) (string, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}
