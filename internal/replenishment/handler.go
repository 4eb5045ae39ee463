package replenishment

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes on-demand replenishment runs.
type Handler struct {
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, scheduler *Scheduler) *Handler {
	return &Handler{logger: logger, scheduler: scheduler}
}

// MountRoutes registers replenishment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/replenishment/candidates", h.candidates)
	r.Post("/replenishment/run", h.run)
	r.Post("/replenishment/products/{id}", h.runProduct)
}

type runResponse struct {
	Scanned  int              `json:"scanned"`
	Created  []int64          `json:"created_purchase_orders"`
	Skipped  []int64          `json:"skipped_products"`
	Failures map[int64]string `json:"failures,omitempty"`
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	report, err := h.scheduler.Trigger(r.Context())
	if errors.Is(err, ErrRunInProgress) {
		httpx.Problem(w, http.StatusConflict, "Run in progress", err.Error())
		return
	}
	resp := runResponse{Scanned: report.Scanned, Created: []int64{}, Skipped: report.Skipped}
	for _, po := range report.Created {
		resp.Created = append(resp.Created, po.ID)
	}
	if len(report.Failed) > 0 {
		resp.Failures = make(map[int64]string, len(report.Failed))
		for id, ferr := range report.Failed {
			resp.Failures[id] = ferr.Error()
		}
	}
	if err != nil && len(report.Failed) == 0 {
		h.logger.Error("replenishment run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) runProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	po, created, err := h.scheduler.TriggerProduct(r.Context(), id)
	if err != nil {
		h.logger.Warn("replenishment product run", slog.Int64("product_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !created {
		httpx.JSON(w, http.StatusOK, map[string]any{"created": false})
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"created": true, "purchase_order": po})
}

func (h *Handler) candidates(w http.ResponseWriter, r *http.Request) {
	products, err := h.scheduler.Candidates(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}
