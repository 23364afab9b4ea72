package ledger

import "github.com/go-chi/chi/v5"

// MountRoutes registers ledger endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/{productID}/entries", h.ListInventoryEntries)
			r.Post("/{productID}/entries", h.AddStock)
			r.Get("/{productID}/statement.xlsx", h.InventoryStatement)
			r.Delete("/entries/{id}", h.DeleteInventoryEntry)
		})
		r.Route("/books", func(r chi.Router) {
			r.Get("/{bookID}/entries", h.ListBookEntries)
			r.Post("/{bookID}/entries", h.AddBookEntry)
			r.Post("/{bookID}/payments", h.AddPayment)
			r.Get("/{bookID}/statement.xlsx", h.BookStatement)
			r.Delete("/entries/{id}", h.DeleteBookEntry)
			r.Post("/entries/{id}/activate", h.ActivateEntry)
			r.Post("/entries/{id}/resolve", h.ResolveEntry)
		})
		r.Route("/purchases", func(r chi.Router) {
			r.Get("/", h.ListPurchases)
			r.Post("/", h.AddPurchase)
			r.Delete("/{id}", h.DeletePurchase)
		})
	})
}
