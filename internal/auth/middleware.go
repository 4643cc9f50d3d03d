package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey struct{}

// WithSubject stores the authenticated subject on the context.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, contextKey{}, subject)
}

// SubjectFrom returns the authenticated subject, if any.
func SubjectFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(contextKey{}).(string)
	return s, ok
}

// Middleware enforces Bearer token auth on every request. When the
// service has no secret configured, requests pass through unchanged.
func Middleware(service *JWTService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !service.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			token := extractBearer(r)
			if token == "" {
				http.Error(w, "missing credentials", http.StatusUnauthorized)
				return
			}
			subject, err := service.Validate(token)
			if err != nil {
				if logger != nil {
					logger.Warn("token validation failed", "error", err)
				}
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

// wsRoute is the only path that may authenticate via query parameter.
// Browsers cannot set headers on WebSocket dials; everywhere else the
// query form would leak tokens into access logs.
const wsRoute = "/ws"

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		if r.URL.Path == wsRoute {
			return r.URL.Query().Get("token")
		}
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
