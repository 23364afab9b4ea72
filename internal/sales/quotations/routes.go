package quotations

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotations", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Show)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/approve", h.Approve)
		r.Post("/{id}/status", h.UpdateStatus)
		r.Post("/{id}/convert", h.Convert)
		r.Post("/{id}/reconvert", h.Reconvert)
		r.Post("/{id}/received", h.Received)
	})
}
