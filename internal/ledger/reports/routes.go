package reports

import "github.com/go-chi/chi/v5"

// MountRoutes registers the report endpoints on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.handleTrialBalance)
	r.Get("/balance-sheet", h.handleBalanceSheet)
	r.Get("/profit-loss", h.handleProfitLoss)
}
