package procurement

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler wires procurement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/purchase-orders", h.list)
	r.Post("/purchase-orders", h.create)
	r.Get("/purchase-orders/{id}", h.show)
	r.Post("/purchase-orders/{id}/order", h.markOrdered)
	r.Post("/purchase-orders/{id}/receive", h.receive)
	r.Post("/purchase-orders/{id}/cancel", h.cancel)
}

type createRequest struct {
	Number     string              `json:"number" validate:"omitempty,max=64"`
	SupplierID int64               `json:"supplier_id" validate:"required,gt=0"`
	Note       string              `json:"note" validate:"max=500"`
	Lines      []createLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type createLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateInput{
		Number:     req.Number,
		SupplierID: req.SupplierID,
		Source:     SourceManual,
		Note:       req.Note,
		ActorID:    shared.ActorFromContext(r.Context()).UserID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput(line))
	}
	po, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, "create purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, err := h.service.List(r.Context(), ListFilter{
		Status:     Status(q.Get("status")),
		SupplierID: httpx.QueryInt64(r, "supplier_id"),
		ProductID:  httpx.QueryInt64(r, "product_id"),
		AutoOnly:   q.Get("auto") == "true",
		Limit:      httpx.QueryLimit(r),
	})
	if err != nil {
		h.fail(w, "list purchase orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_orders": orders})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	po, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) markOrdered(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "order purchase order", h.service.MarkOrdered)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "receive purchase order", h.service.Receive)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel purchase order", h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, id, actorID int64) (PurchaseOrder, error)) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	po, err := fn(r.Context(), id, shared.ActorFromContext(r.Context()).UserID)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
