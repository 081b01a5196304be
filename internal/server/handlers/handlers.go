// Package handlers implements the HTTP endpoints over the authorized
// service facade.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/watzon/syncstore/internal/auth"
	"github.com/watzon/syncstore/internal/config"
	"github.com/watzon/syncstore/internal/service"
	"github.com/watzon/syncstore/internal/user"
)

// LoginGuard tracks failed credential checks so repeated failures lock the
// account out for a while. Implemented by the server's brute-force
// protector; a nil guard disables the lockout.
type LoginGuard interface {
	IsBlocked(key string) bool
	RecordFailedAttempt(key string)
	ClearAttempts(key string)
}

// Handlers bundles the dependencies the endpoints share.
type Handlers struct {
	svc   *service.Service
	users *user.Manager
	jwt   *auth.JWTService
	cfg   *config.Config
	guard LoginGuard
}

func New(svc *service.Service, users *user.Manager, jwtService *auth.JWTService, cfg *config.Config, guard LoginGuard) *Handlers {
	return &Handlers{svc: svc, users: users, jwt: jwtService, cfg: cfg, guard: guard}
}

// pageParams reads marker/limit query parameters, clamping limit to the
// configured bounds.
func (h *Handlers) pageParams(r *http.Request) (marker string, limit int) {
	marker = r.URL.Query().Get("marker")
	limit = h.cfg.Store.DefaultPageSize

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > h.cfg.Store.MaxPageSize {
		limit = h.cfg.Store.MaxPageSize
	}
	return marker, limit
}

// requireUser returns the authenticated user id, writing 401 when absent.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		Unauthorized(w, r, "authentication required")
		return "", false
	}
	return userID, true
}
