package production

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler exposes production orders and BOMs over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/production-orders", h.list)
	r.Post("/production-orders", h.create)
	r.Get("/production-orders/{id}", h.show)
	r.Post("/production-orders/{id}/start", h.transition("start production order", h.service.Start))
	r.Post("/production-orders/{id}/complete", h.transition("complete production order", h.service.Complete))
	r.Post("/production-orders/{id}/cancel", h.transition("cancel production order", h.service.Cancel))
	r.Get("/products/{id}/bom", h.bom)
	r.Put("/products/{id}/bom", h.setBOM)
}

type createRequest struct {
	Number    string            `json:"number" validate:"omitempty,max=64"`
	ProductID int64             `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal   `json:"quantity" validate:"gt=0"`
	Note      string            `json:"note" validate:"max=500"`
	Materials []materialRequest `json:"materials" validate:"required,min=1,dive"`
}

type materialRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost" validate:"gte=0"`
}

type bomRequest struct {
	Components []componentRequest `json:"components" validate:"dive"`
}

type componentRequest struct {
	ComponentID int64           `json:"component_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateInput{
		Number:    req.Number,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Note:      req.Note,
		ActorID:   shared.ActorFromContext(r.Context()).UserID,
	}
	for _, m := range req.Materials {
		input.Materials = append(input.Materials, Material(m))
	}
	o, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, "create production order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.List(r.Context(), ListFilter{
		Status:       Status(r.URL.Query().Get("status")),
		SalesOrderID: httpx.QueryInt64(r, "sales_order_id"),
		Limit:        httpx.QueryLimit(r),
	})
	if err != nil {
		h.fail(w, "list production orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"production_orders": orders})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get production order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) transition(op string, fn func(ctx context.Context, id, actorID int64) (Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := httpx.ParseID(w, r, "id")
		if !ok {
			return
		}
		o, err := fn(r.Context(), id, shared.ActorFromContext(r.Context()).UserID)
		if err != nil {
			h.fail(w, op, err)
			return
		}
		httpx.JSON(w, http.StatusOK, o)
	}
}

func (h *Handler) bom(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	components, err := h.service.BOM(r.Context(), id)
	if err != nil {
		h.fail(w, "get bom", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": id, "components": components})
}

func (h *Handler) setBOM(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	var req bomRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inputs := make([]ComponentInput, 0, len(req.Components))
	for _, c := range req.Components {
		inputs = append(inputs, ComponentInput(c))
	}
	components, err := h.service.SetBOM(r.Context(), id, inputs)
	if err != nil {
		h.fail(w, "set bom", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": id, "components": components})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
