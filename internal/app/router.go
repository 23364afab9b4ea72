package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/observability"
	"github.com/odyssey-erp/gstbilling/internal/sales/quotations"
	"github.com/odyssey-erp/gstbilling/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	LedgerHandler     *ledger.Handler
	IdentityHandler   *identity.Handler
	BillingHandler    *billing.Handler
	QuotationsHandler *quotations.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.BillingHandler != nil {
		params.BillingHandler.MountRoutes(r)
	}
	if params.QuotationsHandler != nil {
		params.QuotationsHandler.MountRoutes(r)
	}
	if params.LedgerHandler != nil {
		params.LedgerHandler.MountRoutes(r)
	}
	if params.IdentityHandler != nil {
		params.IdentityHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
