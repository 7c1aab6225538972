package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sqlagent/sqlagent/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// PrincipalFromContext returns the authenticated principal, or "" when the
// request was not authenticated.
func PrincipalFromContext(ctx context.Context) string {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	return identity.Principal
}

// Middleware rejects requests without a valid key. Paths in public pass
// through unauthenticated.
func Middleware(logger *slog.Logger, validator APIKeyValidator, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]struct{}, len(public))
	for _, path := range public {
		open[path] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := open[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			apiKey := extractAPIKey(r)
			if apiKey == "" {
				writeUnauthorized(w, r, "missing API key")
				return
			}

			identity, ok := validator.Validate(r.Context(), apiKey)
			if !ok {
				observability.OrDiscard(logger).WarnContext(r.Context(), "authentication failed",
					slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
					slog.String("path", r.URL.Path),
				)
				writeUnauthorized(w, r, "invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if authorization == "" {
		return ""
	}
	const bearerPrefix = "Bearer "
	if strings.HasPrefix(authorization, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authorization, bearerPrefix))
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
