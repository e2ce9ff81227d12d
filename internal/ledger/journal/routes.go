package journal

import "github.com/go-chi/chi/v5"

// MountRoutes registers journal entry endpoints on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{entryID}", h.handleGet)
	r.Put("/{entryID}", h.handleUpdate)
	r.Post("/{entryID}/post", h.handlePost)
	r.Post("/{entryID}/reverse", h.handleReverse)
	r.Delete("/{entryID}", h.handleDelete)
}
