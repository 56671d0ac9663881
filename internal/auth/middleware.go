package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. A plain string key could be
// read or shadowed by any package that knows the string. A package-private
// type means only this package can read or write identities in the context.
type contextKey string

const identityKey contextKey = "identity"

// Identity is what the gate attaches to an authorized request. It is taken
// from the token claims as of issuance, so it can lag behind the users table
// until the token expires.
type Identity struct {
	ID       int64
	Username string
	Email    string
}

// Messages written by RequireAuth. They let a client tell "log in again"
// (expired) apart from "your token is broken" (invalid).
const (
	MsgTokenRequired = "token required"
	MsgTokenExpired  = "token expired"
	MsgTokenInvalid  = "invalid token"
)

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// STATE MACHINE:
//
//	no Authorization header / not "Bearer <token>" → 401 "token required"
//	token present → Verify
//	  ErrTokenExpired   → 401 "token expired"
//	  ErrTokenMalformed → 401 "invalid token"
//	  ok                → Identity in context, call next
//
// The gate never touches the database.
func RequireAuth(tokens *TokenService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, MsgTokenRequired)
				return
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				msg := MsgTokenInvalid
				if errors.Is(err, ErrTokenExpired) {
					msg = MsgTokenExpired
				}
				logger.Debug("bearer token rejected",
					slog.String("path", r.URL.Path),
					slog.String("reason", msg),
				)
				writeUnauthorized(w, msg)
				return
			}

			ctx := WithIdentity(r.Context(), Identity{
				ID:       claims.UserID,
				Username: claims.Username,
				Email:    claims.Email,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithIdentity returns a copy of ctx carrying id. Exported for handler tests
// that bypass the middleware.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the authenticated identity.
// Returns (Identity{}, false) if the request did not pass through RequireAuth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.ID > 0
}

// bearerToken extracts <token> from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively (RFC 6750 section 2.1).
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="pinboard"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   "unauthorized",
		"message": message,
	})
}
