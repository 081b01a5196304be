package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/watzon/syncstore/internal/auth"
	"github.com/watzon/syncstore/internal/user"
)

// Me handles GET /user/me.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	u, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, u)
}

// UpdateMe handles PATCH /user/me.
func (h *Handlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var patch user.Update
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		BadRequest(w, r, "invalid json body: "+err.Error())
		return
	}
	if patch.Password != nil {
		if err := auth.ValidatePassword(*patch.Password, h.cfg.Auth.Password); err != nil {
			BadRequest(w, r, err.Error())
			return
		}
	}

	u, err := h.users.UpdateUser(r.Context(), userID, patch)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, u)
}

// AddFriend handles POST /user/friends. Adds the directed edge caller →
// friend; clients wanting mutual friendship call twice from each side.
func (h *Handlers) AddFriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		FriendID string `json:"friend_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid json body: "+err.Error())
		return
	}
	if req.FriendID == "" {
		BadRequest(w, r, "friend_id must not be empty")
		return
	}
	if req.FriendID == userID {
		BadRequest(w, r, "cannot add yourself as a friend")
		return
	}

	if err := h.users.AddFriend(r.Context(), userID, req.FriendID); err != nil {
		StoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListFriends handles GET /user/friends.
func (h *Handlers) ListFriends(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	marker, limit := h.pageParams(r)

	friends, next, err := h.users.ListFriends(r.Context(), userID, marker, limit)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"friends":     friends,
		"next_marker": next,
	})
}
