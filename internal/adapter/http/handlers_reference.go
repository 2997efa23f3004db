package http

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain"
	"github.com/tracklane/trackd/internal/domain/reference"
	"github.com/tracklane/trackd/internal/middleware"
)

// ListReferenceTypes handles GET /references.
func (h *Handlers) ListReferenceTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.References.Types())
}

// CreateReference handles POST /references/{type}.
func (h *Handlers) CreateReference(w http.ResponseWriter, r *http.Request) {
	pkg, ok := readJSON[reference.Package](w, r)
	if !ok {
		return
	}
	pkg.Type = urlParam(r, "type")
	actor := middleware.ActorFromContext(r.Context())

	created, err := h.References.Create(r.Context(), actor, pkg)
	if err != nil {
		writeDomainError(w, err, "reference not created")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetReference handles GET /references/{type}/{id}.
func (h *Handlers) GetReference(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	actor := middleware.ActorFromContext(r.Context())

	pkg, err := h.References.Get(r.Context(), actor, urlParam(r, "type"), id)
	if err != nil {
		writeDomainError(w, err, "reference not found")
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

// batchResponse carries a partial-success multi-get result: everything
// found plus one message per missing id.
type batchResponse struct {
	Packages []reference.Package `json:"packages"`
	Errors   []string            `json:"errors,omitempty"`
}

// GetReferences handles POST /references/{type}/batch.
func (h *Handlers) GetReferences(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		IDs []uuid.UUID `json:"ids"`
	}](w, r)
	if !ok {
		return
	}
	actor := middleware.ActorFromContext(r.Context())

	packs, errs := h.References.GetMany(r.Context(), actor, urlParam(r, "type"), req.IDs, false)
	resp := batchResponse{Packages: packs}
	for _, err := range errs {
		if !errors.Is(err, domain.ErrNotFound) {
			writeDomainError(w, err, "references not fetched")
			return
		}
		resp.Errors = append(resp.Errors, err.Error())
	}
	if resp.Packages == nil {
		resp.Packages = []reference.Package{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateReference handles PUT /references/{type}/{id}.
func (h *Handlers) UpdateReference(w http.ResponseWriter, r *http.Request) {
	if _, ok := urlUUID(w, r, "id"); !ok {
		return
	}
	pkg, ok := readJSON[reference.Package](w, r)
	if !ok {
		return
	}
	pkg.Type = urlParam(r, "type")
	actor := middleware.ActorFromContext(r.Context())

	updated, err := h.References.Edit(r.Context(), actor, pkg)
	if err != nil {
		writeDomainError(w, err, "reference not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteReference handles DELETE /references/{type}/{id}.
func (h *Handlers) DeleteReference(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	actor := middleware.ActorFromContext(r.Context())

	if err := h.References.Delete(r.Context(), actor, urlParam(r, "type"), id); err != nil {
		writeDomainError(w, err, "reference not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
