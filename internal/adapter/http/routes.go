package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Tasks
		r.Get("/tasks", h.ListTasks)
		r.Post("/tasks", h.CreateTask)
		r.Get("/tasks/packages", h.PackTasks)
		r.Get("/tasks/{id}", h.GetTask)
		r.Put("/tasks/{id}", h.UpdateTask)
		r.Delete("/tasks/{id}", h.DeleteTask)
		r.Get("/tasks/{id}/package", h.PackTask)
		r.Post("/tasks/{id}/transit/{transitionId}", h.TransitTask)

		// Transition catalog
		r.Get("/transitions", h.ListTransitions)

		// References (dispatched by type name)
		r.Get("/references", h.ListReferenceTypes)
		r.Post("/references/{type}", h.CreateReference)
		r.Post("/references/{type}/batch", h.GetReferences)
		r.Get("/references/{type}/{id}", h.GetReference)
		r.Put("/references/{type}/{id}", h.UpdateReference)
		r.Delete("/references/{type}/{id}", h.DeleteReference)

		// Users
		r.Post("/users/batch", h.GetUsers)
		r.Get("/users/{id}", h.GetUser)
	})
}
