package cashflow

import "github.com/go-chi/chi/v5"

// MountRoutes registers the document endpoints for the handler's direction.
// The settle verb follows the direction: /pay for payments, /deposit for
// receipts.
func (h *Handler) MountRoutes(r chi.Router) {
	settleVerb := "/pay"
	if h.direction == DirectionInbound {
		settleVerb = "/deposit"
	}
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Route("/{documentID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/submit", h.handleSubmit)
		r.Post("/approve", h.handleApprove)
		r.Post(settleVerb, h.handleSettle)
		r.Post("/cancel", h.handleCancel)
		r.Delete("/", h.handleDelete)
	})
}
