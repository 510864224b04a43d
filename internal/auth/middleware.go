package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/jokes-api/internal/model"
	"github.com/sakif/jokes-api/internal/respond"
)

// contextKey is an unexported type used for context keys in this package,
// so no other package can read or shadow the actor value.
type contextKey string

const actorKey contextKey = "actor"

var errNoBearer = errors.New("auth: missing bearer token")

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the "Authorization: Bearer <token>" header, validates the token
// and stores the Actor in the request context. A missing, malformed or
// expired token gets a 401 and the chain stops.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := extractClaims(r, tokens)
			if err != nil {
				msg := "valid authentication required"
				if errors.Is(err, errNoBearer) {
					msg = "missing bearer token"
				}
				respond.Status(w, http.StatusUnauthorized, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), c.Actor())))
		})
	}
}

// OptionalAuth attaches the Actor when a valid token is present but never
// blocks the request. Public read routes use it; handlers see an anonymous
// Actor when there is no token or it is invalid.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := extractClaims(r, tokens); err == nil {
				r = r.WithContext(WithActor(r.Context(), c.Actor()))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithActor returns a copy of ctx carrying the actor.
func WithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the request's actor. The second result is false
// (and the Actor anonymous) when no valid token was presented.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey).(model.Actor)
	return a, ok && !a.Anonymous()
}

// extractClaims reads the bearer token and validates it.
func extractClaims(r *http.Request, tokens *TokenService) (Claims, error) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return Claims{}, errNoBearer
	}

	return tokens.Validate(strings.TrimSpace(token))
}
