package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler exposes the stock ledger over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products", h.registerProduct)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/products/{id}/value", h.currentValue)
	r.Get("/products/{id}/movements", h.listMovements)
	r.Get("/products/{id}/reconcile", h.reconcile)
	r.Post("/adjustments", h.adjust)
}

type registerProductRequest struct {
	SKU           string          `json:"sku" validate:"required,max=64"`
	Name          string          `json:"name" validate:"required,max=200"`
	Category      Category        `json:"category" validate:"required,oneof=raw-material finished-good component"`
	MinStockLevel decimal.Decimal `json:"min_stock_level" validate:"gte=0"`
	MaxStockLevel decimal.Decimal `json:"max_stock_level" validate:"gte=0"`
	UnitCost      decimal.Decimal `json:"unit_cost" validate:"gte=0"`
	SupplierID    int64           `json:"supplier_id" validate:"gte=0"`
	OpeningStock  decimal.Decimal `json:"opening_stock" validate:"gte=0"`
}

type adjustmentRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost" validate:"gte=0"`
	Decrease  bool            `json:"decrease"`
	Note      string          `json:"note" validate:"max=500"`
}

type productResponse struct {
	Product
	CurrentValue decimal.Decimal `json:"current_value"`
	LowStock     bool            `json:"low_stock"`
}

func (h *Handler) registerProduct(w http.ResponseWriter, r *http.Request) {
	var req registerProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	product, err := h.service.RegisterProduct(r.Context(), ProductInput{
		SKU:           req.SKU,
		Name:          req.Name,
		Category:      req.Category,
		MinStockLevel: req.MinStockLevel,
		MaxStockLevel: req.MaxStockLevel,
		UnitCost:      req.UnitCost,
		SupplierID:    req.SupplierID,
		OpeningStock:  req.OpeningStock,
		ActorID:       actor.UserID,
	})
	if err != nil {
		h.fail(w, "register product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) currentValue(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	value, err := h.service.CurrentValue(r.Context(), id)
	if err != nil {
		h.fail(w, "current value", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": id, "current_value": value})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	filter := MovementFilter{
		ProductID:   id,
		Reference:   Reference(r.URL.Query().Get("reference")),
		ReferenceID: httpx.QueryInt64(r, "reference_id"),
		From:        httpx.QueryTime(r, "from"),
		To:          httpx.QueryTime(r, "to"),
		Limit:       httpx.QueryLimit(r),
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	rec, err := h.service.Reconcile(r.Context(), id)
	if err != nil {
		h.fail(w, "reconcile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id": rec.ProductID,
		"live":       rec.Live,
		"from_log":   rec.FromLog,
		"movements":  rec.Movements,
		"consistent": rec.Consistent(),
	})
}

// adjust books a manual stock correction. Order-driven movements only happen
// through the order state machines.
func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	product, movement, err := h.service.Adjust(r.Context(), AdjustmentInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitCost:  req.UnitCost,
		Decrease:  req.Decrease,
		ActorID:   actor.UserID,
		Note:      req.Note,
	})
	if err != nil {
		h.fail(w, "adjust stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"product": toProductResponse(product), "movement": movement})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func toProductResponse(p Product) productResponse {
	return productResponse{Product: p, CurrentValue: p.CurrentValue(), LowStock: p.IsLowStock()}
}
