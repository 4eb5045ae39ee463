// Package notify reports ledger shortfalls to operators.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Kind classifies alerts.
type Kind string

const (
	KindInsufficientStock    Kind = "insufficient_stock"
	KindInsufficientMaterial Kind = "insufficient_material"
	KindInsufficientBalance  Kind = "insufficient_balance"
	KindReplenishmentFailed  Kind = "replenishment_failed"
	KindStockDrift           Kind = "stock_drift"
)

// Alert is a single operator notification.
type Alert struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Entity     string          `json:"entity"`
	EntityID   int64           `json:"entity_id"`
	Subject    string          `json:"subject"`
	Required   decimal.Decimal `json:"required"`
	Available  decimal.Decimal `json:"available"`
	Detail     string          `json:"detail,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// New stamps id and time on an alert.
func New(kind Kind, entity string, entityID int64) Alert {
	return Alert{ID: uuid.NewString(), Kind: kind, Entity: entity, EntityID: entityID, OccurredAt: time.Now().UTC()}
}

// FromError builds an alert for the shortfall errors. Other errors yield false.
func FromError(entity string, entityID int64, err error) (Alert, bool) {
	var (
		stockErr    *shared.InsufficientStockError
		materialErr *shared.InsufficientMaterialError
		balanceErr  *shared.InsufficientBalanceError
	)
	switch {
	case errors.As(err, &materialErr):
		a := New(KindInsufficientMaterial, entity, entityID)
		a.Subject, a.Required, a.Available = label(materialErr.SKU, materialErr.ProductID), materialErr.Required, materialErr.Available
		return a, true
	case errors.As(err, &stockErr):
		a := New(KindInsufficientStock, entity, entityID)
		a.Subject, a.Required, a.Available = label(stockErr.SKU, stockErr.ProductID), stockErr.Required, stockErr.Available
		return a, true
	case errors.As(err, &balanceErr):
		a := New(KindInsufficientBalance, entity, entityID)
		a.Subject, a.Required, a.Available = balanceErr.Account, balanceErr.Required, balanceErr.Available
		return a, true
	}
	return Alert{}, false
}

// Report sends an alert for err when it is a shortfall. Delivery failures are
// logged and never returned.
func Report(ctx context.Context, n Notifier, logger *slog.Logger, entity string, entityID int64, err error) {
	if n == nil || err == nil {
		return
	}
	alert, ok := FromError(entity, entityID, err)
	if !ok {
		return
	}
	if nerr := n.Notify(ctx, alert); nerr != nil && logger != nil {
		logger.Warn("alert delivery failed", slog.String("kind", string(alert.Kind)), slog.Any("error", nerr))
	}
}

func label(sku string, productID int64) string {
	if sku != "" {
		return sku
	}
	return "#" + strconv.FormatInt(productID, 10)
}
