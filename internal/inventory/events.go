package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LowStockEvent is emitted after a decreasing movement leaves a product eligible
// for replenishment.
type LowStockEvent struct {
	ProductID     int64
	SKU           string
	CurrentStock  decimal.Decimal
	MinStockLevel decimal.Decimal
	Reference     Reference
	ReferenceID   int64
	DetectedAt    time.Time
}

// ReplenishmentTrigger receives low-stock events once the triggering transaction
// has committed. Implementations must not block the caller.
type ReplenishmentTrigger interface {
	HandleLowStock(ctx context.Context, evt LowStockEvent)
}
