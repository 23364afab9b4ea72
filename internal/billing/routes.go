package billing

import "github.com/go-chi/chi/v5"

// MountRoutes registers invoice endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.ListInvoices)
		r.Post("/", h.CreateInvoice)
		r.Get("/{id}", h.GetInvoice)
		r.Delete("/{id}", h.DeleteInvoice)
		r.Post("/{id}/push-to-books", h.PushToBooks)
	})
}
