package http

import (
	"net/http"

	"github.com/tracklane/trackd/internal/port/database"
	"github.com/tracklane/trackd/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Tasks      *service.TaskService
	References *service.Facade
	Catalog    *service.Catalog
	Users      database.UserStore
}

// healthResponse is the health probe payload.
type healthResponse struct {
	Status string `json:"status"`
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
