package sales

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler manages sales endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sales-orders", h.listSalesOrders)
	r.Post("/sales-orders", h.createSalesOrder)
	r.Get("/sales-orders/{id}", h.showSalesOrder)
	r.Post("/sales-orders/{id}/confirm", h.transition("confirm sales order", h.service.Confirm))
	r.Post("/sales-orders/{id}/ship", h.transition("ship sales order", h.service.Ship))
	r.Post("/sales-orders/{id}/deliver", h.transition("deliver sales order", h.service.Deliver))
	r.Post("/sales-orders/{id}/cancel", h.transition("cancel sales order", h.service.Cancel))
}

func (h *Handler) listSalesOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.List(r.Context(), ListFilter{
		Status:     Status(r.URL.Query().Get("status")),
		CustomerID: httpx.QueryInt64(r, "customer_id"),
		Limit:      httpx.QueryLimit(r),
	})
	if err != nil {
		h.fail(w, "list sales orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales_orders": orders})
}

func (h *Handler) showSalesOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	so, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get sales order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, so)
}

func (h *Handler) createSalesOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	so, err := h.service.Create(r.Context(), req, shared.ActorFromContext(r.Context()).UserID)
	if err != nil {
		h.fail(w, "create sales order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, so)
}

func (h *Handler) transition(op string, fn func(ctx context.Context, id, actorID int64) (SalesOrder, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := httpx.ParseID(w, r, "id")
		if !ok {
			return
		}
		so, err := fn(r.Context(), id, shared.ActorFromContext(r.Context()).UserID)
		if err != nil {
			h.fail(w, op, err)
			return
		}
		httpx.JSON(w, http.StatusOK, so)
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
