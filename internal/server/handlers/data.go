package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/watzon/syncstore/internal/metrics"
	"github.com/watzon/syncstore/internal/store"
)

// CreateItem handles POST /data/{namespace}/{collection}.
func (h *Handlers) CreateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	namespace := r.PathValue("namespace")
	collection := r.PathValue("collection")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		BadRequest(w, r, "reading request body failed")
		return
	}

	item, err := h.svc.Insert(r.Context(), namespace, collection, body, userID)
	metrics.RecordStoreOperation("insert", namespace, err)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, item)
}

// GetItem handles GET /data/{namespace}/{collection}/{id}.
func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	namespace := r.PathValue("namespace")
	collection := r.PathValue("collection")
	id := r.PathValue("id")

	item, err := h.svc.Get(r.Context(), namespace, collection, id, userID)
	metrics.RecordStoreOperation("get", namespace, err)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, item)
}

// GetItemByUnique handles GET /data/{namespace}/{collection}/unique/{value}.
func (h *Handlers) GetItemByUnique(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	namespace := r.PathValue("namespace")
	collection := r.PathValue("collection")
	value := r.PathValue("value")

	item, err := h.svc.GetByUnique(r.Context(), namespace, collection, value, userID)
	metrics.RecordStoreOperation("get_by_unique", namespace, err)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, item)
}

// UpdateItem handles PUT /data/{namespace}/{collection}/{id}.
func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	namespace := r.PathValue("namespace")
	collection := r.PathValue("collection")
	id := r.PathValue("id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		BadRequest(w, r, "reading request body failed")
		return
	}

	item, err := h.svc.Update(r.Context(), namespace, collection, id, body, userID)
	metrics.RecordStoreOperation("update", namespace, err)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, item)
}

// DeleteItem handles DELETE /data/{namespace}/{collection}/{id}.
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	namespace := r.PathValue("namespace")
	collection := r.PathValue("collection")
	id := r.PathValue("id")

	err := h.svc.Delete(r.Context(), namespace, collection, id, userID)
	metrics.RecordStoreOperation("delete", namespace, err)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BatchDeleteItems handles POST /data/{namespace}/{collection}/batch-delete.
func (h *Handlers) BatchDeleteItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	namespace := r.PathValue("namespace")
	collection := r.PathValue("collection")

	var req struct {
		IDs []store.Id `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid json body: "+err.Error())
		return
	}

	err := h.svc.BatchDelete(r.Context(), namespace, collection, req.IDs, userID)
	metrics.RecordStoreOperation("batch_delete", namespace, err)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListItems handles GET /data/{namespace}/{collection}: the caller's own
// items, keyset-paged.
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	namespace := r.PathValue("namespace")
	collection := r.PathValue("collection")
	marker, limit := h.pageParams(r)

	page, err := h.svc.ListMine(r.Context(), namespace, collection, userID, marker, limit)
	metrics.RecordStoreOperation("list_by_owner", namespace, err)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, page)
}

// ListChildren handles GET /data/{namespace}/{collection}/children/{parent_id}.
func (h *Handlers) ListChildren(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	namespace := r.PathValue("namespace")
	collection := r.PathValue("collection")
	parentID := r.PathValue("parent_id")
	marker, limit := h.pageParams(r)

	page, err := h.svc.ListChildren(r.Context(), namespace, collection, parentID, userID, marker, limit)
	metrics.RecordStoreOperation("list_children", namespace, err)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, page)
}

// ListByInspect handles GET /data/{namespace}/{collection}/inspect/{field}/{value}.
func (h *Handlers) ListByInspect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	namespace := r.PathValue("namespace")
	collection := r.PathValue("collection")
	field := r.PathValue("field")
	value := r.PathValue("value")
	marker, limit := h.pageParams(r)

	page, err := h.svc.ListByInspect(r.Context(), namespace, collection, field, value, userID, marker, limit)
	metrics.RecordStoreOperation("list_by_inspect", namespace, err)
	if err != nil {
		StoreError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, page)
}
