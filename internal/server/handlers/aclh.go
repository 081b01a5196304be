package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/watzon/syncstore/internal/acl"
	"github.com/watzon/syncstore/internal/store"
)

// aclEntryView is the wire shape of a grant.
type aclEntryView struct {
	UserID string    `json:"user_id"`
	Level  acl.Level `json:"access_level"`
}

// GetACL handles GET /acl/{namespace}/{collection}/{id}: the full grant set
// on one item. Owner only.
func (h *Handlers) GetACL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	namespace := r.PathValue("namespace")
	collection := r.PathValue("collection")
	id := r.PathValue("id")

	entries, err := h.svc.GetACL(r.Context(), namespace, collection, id, userID)
	if err != nil {
		StoreError(w, r, err)
		return
	}

	views := make([]aclEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, aclEntryView{UserID: e.UserID, Level: e.Level})
	}
	JSON(w, http.StatusOK, map[string]any{
		"data_id":     id,
		"permissions": views,
	})
}

// ReplaceACL handles PUT /acl/{namespace}/{collection}/{id}: replaces the
// full grant set transactionally. Owner only.
func (h *Handlers) ReplaceACL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	namespace := r.PathValue("namespace")
	collection := r.PathValue("collection")
	id := r.PathValue("id")

	var req struct {
		Permissions []aclEntryView `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid json body: "+err.Error())
		return
	}

	grants := make(map[store.Uid]acl.Level, len(req.Permissions))
	for _, p := range req.Permissions {
		level, err := acl.ParseLevel(string(p.Level))
		if err != nil {
			BadRequest(w, r, err.Error())
			return
		}
		grants[p.UserID] = level
	}

	if err := h.svc.ReplaceACL(r.Context(), namespace, collection, id, userID, grants); err != nil {
		StoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GrantACL handles POST /acl/{namespace}/{collection}/{id}/grants: upserts
// one grant. Owner only.
func (h *Handlers) GrantACL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	namespace := r.PathValue("namespace")
	collection := r.PathValue("collection")
	id := r.PathValue("id")

	var req aclEntryView
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid json body: "+err.Error())
		return
	}
	level, err := acl.ParseLevel(string(req.Level))
	if err != nil {
		BadRequest(w, r, err.Error())
		return
	}

	entry, err := h.svc.GrantACL(r.Context(), namespace, collection, id, userID, req.UserID, level)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, entry)
}

// DeleteACL handles DELETE /acl/{namespace}/{collection}/{id}: removes
// every grant on the item. Owner only.
func (h *Handlers) DeleteACL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	namespace := r.PathValue("namespace")
	collection := r.PathValue("collection")
	id := r.PathValue("id")

	if err := h.svc.DeleteACL(r.Context(), namespace, collection, id, userID); err != nil {
		StoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListGrants handles GET /acl/grants: the grants held by the caller.
func (h *Handlers) ListGrants(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	marker, limit := h.pageParams(r)

	entries, next, err := h.svc.ListGrants(r.Context(), userID, marker, limit)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"grants":      entries,
		"next_marker": next,
	})
}
