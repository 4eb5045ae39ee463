package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Category classifies products.
type Category string

const (
	CategoryRawMaterial  Category = "raw-material"
	CategoryFinishedGood Category = "finished-good"
	CategoryComponent    Category = "component"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryRawMaterial, CategoryFinishedGood, CategoryComponent:
		return true
	}
	return false
}

// Direction enumerates supported stock movements.
type Direction string

const (
	// DirectionIn represents an inbound movement.
	DirectionIn Direction = "in"
	// DirectionOut represents an outbound movement.
	DirectionOut Direction = "out"
	// DirectionAdjustment indicates manual corrections in either direction.
	DirectionAdjustment Direction = "adjustment"
)

// Reference tags the workflow that caused a movement.
type Reference string

const (
	ReferencePurchase   Reference = "purchase"
	ReferenceSale       Reference = "sale"
	ReferenceProduction Reference = "production"
	ReferenceAdjustment Reference = "adjustment"
)

// Valid reports whether r is a known reference tag.
func (r Reference) Valid() bool {
	switch r {
	case ReferencePurchase, ReferenceSale, ReferenceProduction, ReferenceAdjustment:
		return true
	}
	return false
}

// Product is the ledger-owned stock aggregate.
type Product struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Category      Category        `json:"category"`
	CurrentStock  decimal.Decimal `json:"current_stock"`
	MinStockLevel decimal.Decimal `json:"min_stock_level"`
	MaxStockLevel decimal.Decimal `json:"max_stock_level"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	SupplierID    int64           `json:"supplier_id"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CurrentValue is the stock valuation at the last received cost.
func (p Product) CurrentValue() decimal.Decimal {
	return p.CurrentStock.Mul(p.UnitCost)
}

// IsLowStock reports whether stock is at or below the minimum level.
func (p Product) IsLowStock() bool {
	return p.CurrentStock.LessThanOrEqual(p.MinStockLevel)
}

// NeedsReplenishment is the replenishment trigger condition.
func (p Product) NeedsReplenishment() bool {
	return p.Active && p.Category == CategoryRawMaterial && p.IsLowStock() && p.SupplierID != 0
}

// ReorderQuantity is max(max level - current stock, min level).
func (p Product) ReorderQuantity() decimal.Decimal {
	return decimal.Max(p.MaxStockLevel.Sub(p.CurrentStock), p.MinStockLevel)
}

// Movement is one immutable stock ledger entry. Change is the signed delta applied
// to CurrentStock; Quantity is always positive.
type Movement struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	Direction   Direction       `json:"direction"`
	Quantity    decimal.Decimal `json:"quantity"`
	Change      decimal.Decimal `json:"change"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Reference   Reference       `json:"reference"`
	ReferenceID int64           `json:"reference_id"`
	ActorID     int64           `json:"actor_id"`
	Note        string          `json:"note"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MovementInput requests a single stock mutation.
type MovementInput struct {
	ProductID   int64
	Direction   Direction
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	Decrease    bool
	Reference   Reference
	ReferenceID int64
	ActorID     int64
	Note        string
}

// AdjustmentInput requests a manual stock correction.
type AdjustmentInput struct {
	ProductID int64
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
	Decrease  bool
	ActorID   int64
	Note      string
}

// Posting pairs the updated product with the movement that produced it.
type Posting struct {
	Product  Product
	Movement Movement
}

// Requirement is a quantity needed from a product.
type Requirement struct {
	ProductID int64
	Quantity  decimal.Decimal
}

// ProductInput registers a product in the ledger.
type ProductInput struct {
	SKU           string
	Name          string
	Category      Category
	MinStockLevel decimal.Decimal
	MaxStockLevel decimal.Decimal
	UnitCost      decimal.Decimal
	SupplierID    int64
	OpeningStock  decimal.Decimal
	ActorID       int64
}

// MovementFilter filters stock card entries.
type MovementFilter struct {
	ProductID   int64
	Reference   Reference
	ReferenceID int64
	From        time.Time
	To          time.Time
	Limit       int
}

// Reconciliation compares the live stock figure with the movement log.
type Reconciliation struct {
	ProductID int64
	Live      decimal.Decimal
	FromLog   decimal.Decimal
	Movements int
}

// Consistent reports whether the log reproduces the live value.
func (r Reconciliation) Consistent() bool {
	return r.Live.Equal(r.FromLog)
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = fmt.Errorf("inventory: quantity must be positive: %w", shared.ErrValidation)
	// ErrInvalidUnitCost indicates invalid cost value.
	ErrInvalidUnitCost = fmt.Errorf("inventory: unit cost must be >= 0: %w", shared.ErrValidation)
	// ErrInvalidDirection indicates an unknown movement direction.
	ErrInvalidDirection = fmt.Errorf("inventory: unknown movement direction: %w", shared.ErrValidation)
	// ErrInvalidReference indicates an unknown reference tag.
	ErrInvalidReference = fmt.Errorf("inventory: unknown movement reference: %w", shared.ErrValidation)
	// ErrTooPrecise indicates a quantity or cost with more than four decimals.
	ErrTooPrecise = fmt.Errorf("inventory: at most %d decimal places allowed: %w", shared.QuantityPlaces, shared.ErrValidation)
	// ErrNoMovements indicates an empty batch.
	ErrNoMovements = fmt.Errorf("inventory: at least one movement required: %w", shared.ErrValidation)
)

// change validates the input and returns the signed stock delta.
func (in MovementInput) change() (decimal.Decimal, error) {
	if in.ProductID == 0 {
		return decimal.Zero, fmt.Errorf("inventory: product required: %w", shared.ErrValidation)
	}
	if !in.Quantity.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}
	if in.UnitCost.IsNegative() {
		return decimal.Zero, ErrInvalidUnitCost
	}
	if !shared.FitsQuantity(in.Quantity) || !shared.FitsQuantity(in.UnitCost) {
		return decimal.Zero, ErrTooPrecise
	}
	if !in.Reference.Valid() {
		return decimal.Zero, ErrInvalidReference
	}
	switch in.Direction {
	case DirectionIn:
		return in.Quantity, nil
	case DirectionOut:
		return in.Quantity.Neg(), nil
	case DirectionAdjustment:
		if in.Decrease {
			return in.Quantity.Neg(), nil
		}
		return in.Quantity, nil
	}
	return decimal.Zero, ErrInvalidDirection
}
