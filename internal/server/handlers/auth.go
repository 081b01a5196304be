package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/watzon/syncstore/internal/auth"
	"github.com/watzon/syncstore/internal/database"
	"github.com/watzon/syncstore/internal/user"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	UserID    string `json:"user_id"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// Register handles POST /auth/register.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Auth.AllowRegistration {
		Forbidden(w, r, "registration is disabled")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid json body: "+err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		BadRequest(w, r, "username must not be empty")
		return
	}
	if err := auth.ValidatePassword(req.Password, h.cfg.Auth.Password); err != nil {
		BadRequest(w, r, err.Error())
		return
	}

	u, err := h.users.CreateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		StoreError(w, r, err)
		return
	}

	token, expiresAt, err := h.jwt.GenerateToken(u.ID, u.Username)
	if err != nil {
		InternalError(w, r, "issuing token failed")
		return
	}

	JSON(w, http.StatusCreated, tokenResponse{
		UserID:    u.ID,
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(database.TimeFormat),
	})
}

// Login handles POST /auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid json body: "+err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	guardKey := strings.ToLower(req.Username)
	if h.guard != nil && h.guard.IsBlocked(guardKey) {
		Error(w, r, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS",
			"too many failed attempts, try again later")
		return
	}

	userID, err := h.users.ValidateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		if h.guard != nil && errors.Is(err, user.ErrInvalidCredentials) {
			h.guard.RecordFailedAttempt(guardKey)
		}
		StoreError(w, r, err)
		return
	}
	if h.guard != nil {
		h.guard.ClearAttempts(guardKey)
	}

	token, expiresAt, err := h.jwt.GenerateToken(userID, req.Username)
	if err != nil {
		InternalError(w, r, "issuing token failed")
		return
	}

	log.Info().Str("user_id", userID).Msg("User logged in")

	JSON(w, http.StatusOK, tokenResponse{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(database.TimeFormat),
	})
}
