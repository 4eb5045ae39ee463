package production

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Status is the production order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Order converts materials into a finished product.
type Order struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	ProductID    int64           `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Status       Status          `json:"status"`
	SalesOrderID int64           `json:"sales_order_id,omitempty"`
	Materials    []Material      `json:"materials"`
	Note         string          `json:"note"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	StartDate    *time.Time      `json:"start_date,omitempty"`
	EndDate      *time.Time      `json:"end_date,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
}

// UnitCost rolls the material cost up to one finished unit.
func (o Order) UnitCost() decimal.Decimal {
	if !o.Quantity.IsPositive() {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, m := range o.Materials {
		total = total.Add(m.Quantity.Mul(m.UnitCost))
	}
	return total.DivRound(o.Quantity, 4)
}

// Material is consumed when the order starts.
type Material struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// Component is one bill-of-materials entry: Quantity of ComponentID per unit of ProductID.
type Component struct {
	ProductID   int64           `json:"product_id"`
	ComponentID int64           `json:"component_id"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status       Status
	SalesOrderID int64
	Limit        int
}

func (o *Order) start(at time.Time) error {
	if err := shared.RequireState("production_order", o.ID, o.Status, StatusPending); err != nil {
		return err
	}
	o.Status = StatusInProgress
	o.StartDate = &at
	o.UpdatedAt = at
	return nil
}

func (o *Order) complete(at time.Time) error {
	if err := shared.RequireState("production_order", o.ID, o.Status, StatusInProgress); err != nil {
		return err
	}
	o.Status = StatusCompleted
	o.EndDate = &at
	o.UpdatedAt = at
	return nil
}

func (o *Order) cancel(at time.Time) error {
	if err := shared.RequireState("production_order", o.ID, o.Status, StatusPending); err != nil {
		return err
	}
	o.Status = StatusCancelled
	o.CancelledAt = &at
	o.UpdatedAt = at
	return nil
}

var (
	// ErrNoMaterials indicates an order without materials.
	ErrNoMaterials = fmt.Errorf("production: materials list required: %w", shared.ErrValidation)
	// ErrNoBOM indicates a finished good without a bill of materials.
	ErrNoBOM = errors.New("production: no bill of materials")
)
