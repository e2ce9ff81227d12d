package banking

import "github.com/go-chi/chi/v5"

// MountRoutes registers bank account endpoints on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleListAccounts)
	r.Post("/", h.handleCreateAccount)
	r.Route("/{bankAccountID}", func(r chi.Router) {
		r.Get("/", h.handleGetAccount)
		r.Get("/summary", h.handleSummary)
		r.Get("/transactions", h.handleListTransactions)
		r.Post("/transactions", h.handleAppendTransaction)
		r.Post("/reconcile", h.handleReconcile)
	})
	r.Put("/transactions/{transactionID}", h.handleUpdateTransaction)
	r.Delete("/transactions/{transactionID}", h.handleDeleteTransaction)
}
