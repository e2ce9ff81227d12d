package accounts

import "github.com/go-chi/chi/v5"

// MountRoutes registers account endpoints on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/tree", h.handleTree)
	r.Get("/{accountID}", h.handleGet)
	r.Get("/{accountID}/balance", h.handleBalance)
	r.Put("/{accountID}", h.handleUpdate)
	r.Delete("/{accountID}", h.handleDelete)
}
