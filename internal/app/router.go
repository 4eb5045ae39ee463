package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-ledger/internal/finance"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/production"
	"github.com/odyssey-erp/odyssey-ledger/internal/replenishment"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	InventoryHandler     *inventory.Handler
	ProcurementHandler   *procurement.Handler
	SalesHandler         *sales.Handler
	ProductionHandler    *production.Handler
	FinanceHandler       *finance.Handler
	ReplenishmentHandler *replenishment.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with Odyssey defaults.
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
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	limit := 0
	if params.Config != nil {
		limit = params.Config.AppRateLimit
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(WriteRateLimit(limit))
		mount := func(h interface{ MountRoutes(chi.Router) }) {
			r.Group(h.MountRoutes)
		}
		if params.InventoryHandler != nil {
			mount(params.InventoryHandler)
		}
		if params.ProcurementHandler != nil {
			mount(params.ProcurementHandler)
		}
		if params.SalesHandler != nil {
			mount(params.SalesHandler)
		}
		if params.ProductionHandler != nil {
			mount(params.ProductionHandler)
		}
		if params.FinanceHandler != nil {
			mount(params.FinanceHandler)
		}
		if params.ReplenishmentHandler != nil {
			mount(params.ReplenishmentHandler)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
