package http

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/middleware"
)

// GetUser handles GET /users/{id}.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	u, err := h.Users.GetUser(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GetUsers handles POST /users/batch. Missing ids are silently absent
// from the result.
func (h *Handlers) GetUsers(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		IDs []uuid.UUID `json:"ids"`
	}](w, r)
	if !ok {
		return
	}

	users, err := h.Users.GetUsers(r.Context(), req.IDs)
	if err != nil {
		writeDomainError(w, err, "users not fetched")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// ListTransitions handles GET /transitions. It serves the moves the
// calling actor may execute from the given state.
func (h *Handlers) ListTransitions(w http.ResponseWriter, r *http.Request) {
	stateID, err := uuid.Parse(r.URL.Query().Get("state_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid state_id")
		return
	}
	actor := middleware.ActorFromContext(r.Context())

	transitions, err := h.Catalog.TransitionsFor(r.Context(), actor.Role, stateID)
	if err != nil {
		writeDomainError(w, err, "transitions not listed")
		return
	}
	writeJSON(w, http.StatusOK, transitions)
}
