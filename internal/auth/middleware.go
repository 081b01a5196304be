package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
)

type contextKey string

const userIDKey contextKey = "auth_user_id"

// UserID returns the authenticated user's id from the request context, or
// "" when the request was unauthenticated (public path).
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// WithUserID stamps the authenticated user onto the context. Exposed for
// tests and internal callers.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// Middleware verifies bearer tokens on every request whose path does not
// match one of the public glob patterns.
func Middleware(jwtService *JWTService, publicPaths []string) func(http.Handler) http.Handler {
	globs := make([]glob.Glob, 0, len(publicPaths))
	for _, p := range publicPaths {
		g, err := glob.Compile(p)
		if err != nil {
			// Config validation rejects bad patterns before we get here.
			log.Warn().Str("pattern", p).Err(err).Msg("Skipping invalid public path pattern")
			continue
		}
		globs = append(globs, g)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, g := range globs {
				if g.Match(r.URL.Path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized: " + msg})
}
