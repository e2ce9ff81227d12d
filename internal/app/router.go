package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-erp/meridian/internal/banking"
	"github.com/meridian-erp/meridian/internal/cashflow"
	"github.com/meridian-erp/meridian/internal/ledger/accounts"
	"github.com/meridian-erp/meridian/internal/ledger/journal"
	"github.com/meridian-erp/meridian/internal/ledger/reports"
	"github.com/meridian-erp/meridian/internal/observability"
	"github.com/meridian-erp/meridian/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AccountService  *accounts.Service
	JournalService  *journal.Service
	CashflowService *cashflow.Service
	BankingService  *banking.Service
	ReportService   *reports.Service
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	accountHandler := accounts.NewHandler(params.Logger, params.AccountService)
	journalHandler := journal.NewHandler(params.Logger, params.JournalService)
	paymentHandler := cashflow.NewHandler(params.Logger, params.CashflowService, cashflow.DirectionOutbound)
	receiptHandler := cashflow.NewHandler(params.Logger, params.CashflowService, cashflow.DirectionInbound)
	bankingHandler := banking.NewHandler(params.Logger, params.BankingService)
	reportHandler := reports.NewHandler(params.Logger, params.ReportService)

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", accountHandler.MountRoutes)
		r.Route("/journal-entries", journalHandler.MountRoutes)
		r.Route("/payments", paymentHandler.MountRoutes)
		r.Route("/receipts", receiptHandler.MountRoutes)
		r.Route("/bank-accounts", bankingHandler.MountRoutes)
		r.Route("/reports", reportHandler.MountRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
