package http

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain/task"
	"github.com/tracklane/trackd/internal/middleware"
	"github.com/tracklane/trackd/internal/port/database"
)

// CreateTask handles POST /tasks.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.CreateRequest](w, r)
	if !ok {
		return
	}
	actor := middleware.ActorFromContext(r.Context())

	created, err := h.Tasks.Create(r.Context(), actor, req)
	if err != nil {
		writeDomainError(w, err, "task not created")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetTask handles GET /tasks/{id}.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	actor := middleware.ActorFromContext(r.Context())

	t, err := h.Tasks.Get(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListTasks handles GET /tasks with optional filter query parameters.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	f, ok := taskFilterFromQuery(w, r)
	if !ok {
		return
	}

	tasks, err := h.Tasks.List(r.Context(), actor, f)
	if err != nil {
		writeDomainError(w, err, "tasks not listed")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// UpdateTask handles PUT /tasks/{id}. State changes are rejected here;
// POST /tasks/{id}/transit/{transitionId} is the only state path.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	upd, ok := readJSON[task.Update](w, r)
	if !ok {
		return
	}
	actor := middleware.ActorFromContext(r.Context())

	updated, err := h.Tasks.Edit(r.Context(), actor, id, upd)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteTask handles DELETE /tasks/{id}.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	actor := middleware.ActorFromContext(r.Context())

	if err := h.Tasks.Delete(r.Context(), actor, id); err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TransitTask handles POST /tasks/{id}/transit/{transitionId}.
func (h *Handlers) TransitTask(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	transitionID, ok := urlUUID(w, r, "transitionId")
	if !ok {
		return
	}
	actor := middleware.ActorFromContext(r.Context())

	moved, err := h.Tasks.Transit(r.Context(), actor, id, transitionID)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, moved)
}

// PackTask handles GET /tasks/{id}/package.
func (h *Handlers) PackTask(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	actor := middleware.ActorFromContext(r.Context())

	pkg, err := h.Tasks.Pack(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

// PackTasks handles GET /tasks/packages.
func (h *Handlers) PackTasks(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	f, ok := taskFilterFromQuery(w, r)
	if !ok {
		return
	}

	packs, err := h.Tasks.PackMany(r.Context(), actor, f)
	if err != nil {
		writeDomainError(w, err, "tasks not packed")
		return
	}
	writeJSON(w, http.StatusOK, packs)
}

func taskFilterFromQuery(w http.ResponseWriter, r *http.Request) (database.TaskFilter, bool) {
	var f database.TaskFilter
	q := r.URL.Query()

	if v := q.Get("performer_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid performer_id")
			return f, false
		}
		f.PerformerID = &id
	}
	if v := q.Get("author_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid author_id")
			return f, false
		}
		f.AuthorID = &id
	}
	for _, v := range q["state_id"] {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid state_id")
			return f, false
		}
		f.StateIDs = append(f.StateIDs, id)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return f, false
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return f, false
		}
		f.Offset = n
	}
	return f, true
}
