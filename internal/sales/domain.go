package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ============================================================================
// SALES ORDER
// ============================================================================

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

type SalesOrder struct {
	ID                int64           `json:"id"`
	Number            string          `json:"number"`
	CustomerID        int64           `json:"customer_id"`
	Status            Status          `json:"status"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Tax               decimal.Decimal `json:"tax"`
	Total             decimal.Decimal `json:"total"`
	ProductionOrderID int64           `json:"production_order_id,omitempty"`
	Note              string          `json:"note"`
	CreatedBy         int64           `json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	ConfirmedAt       *time.Time      `json:"confirmed_at,omitempty"`
	ShippedAt         *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
	Lines             []Line          `json:"lines"`
}

type Line struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type ListFilter struct {
	Status     Status
	CustomerID int64
	Limit      int
}

// ============================================================================
// REQUESTS
// ============================================================================

type CreateOrderRequest struct {
	Number     string              `json:"number" validate:"omitempty,max=64"`
	CustomerID int64               `json:"customer_id" validate:"required,gt=0"`
	Note       string              `json:"note" validate:"max=500"`
	Lines      []CreateLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type CreateLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

// ============================================================================
// TRANSITIONS
// ============================================================================

func (o *SalesOrder) confirm(at time.Time) error {
	if err := shared.RequireState("sales_order", o.ID, o.Status, StatusPending); err != nil {
		return err
	}
	o.Status = StatusConfirmed
	o.ConfirmedAt = &at
	o.UpdatedAt = at
	return nil
}

func (o *SalesOrder) ship(at time.Time) error {
	if err := shared.RequireState("sales_order", o.ID, o.Status, StatusConfirmed); err != nil {
		return err
	}
	o.Status = StatusShipped
	o.ShippedAt = &at
	o.UpdatedAt = at
	return nil
}

func (o *SalesOrder) deliver(at time.Time) error {
	if err := shared.RequireState("sales_order", o.ID, o.Status, StatusShipped); err != nil {
		return err
	}
	o.Status = StatusDelivered
	o.DeliveredAt = &at
	o.UpdatedAt = at
	return nil
}

func (o *SalesOrder) cancel(at time.Time) error {
	if err := shared.RequireState("sales_order", o.ID, o.Status, StatusPending); err != nil {
		return err
	}
	o.Status = StatusCancelled
	o.CancelledAt = &at
	o.UpdatedAt = at
	return nil
}

var ErrNoLines = fmt.Errorf("sales: at least one line required: %w", shared.ErrValidation)
