package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Status is the purchase order lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOrdered   Status = "ordered"
	StatusReceived  Status = "received"
	StatusCancelled Status = "cancelled"
)

// Open reports whether goods are still expected for the order.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusOrdered
}

// Source identifies who raised the order.
type Source string

const (
	SourceManual    Source = "manual"
	SourceInventory Source = "inventory"
)

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	SupplierID    int64           `json:"supplier_id"`
	Status        Status          `json:"status"`
	Source        Source          `json:"source"`
	AutoGenerated bool            `json:"auto_generated"`
	Lines         []Line          `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Note          string          `json:"note"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	OrderedAt     *time.Time      `json:"ordered_at,omitempty"`
	ReceivedDate  *time.Time      `json:"received_date,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
}

// Line represents PO lines.
type Line struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status     Status
	SupplierID int64
	ProductID  int64
	AutoOnly   bool
	Limit      int
}

// markOrdered moves pending to ordered.
func (po *PurchaseOrder) markOrdered(at time.Time) error {
	if err := shared.RequireState("purchase_order", po.ID, po.Status, StatusPending); err != nil {
		return err
	}
	po.Status = StatusOrdered
	po.OrderedAt = &at
	po.UpdatedAt = at
	return nil
}

func (po *PurchaseOrder) receive(at time.Time) error {
	if err := shared.RequireState("purchase_order", po.ID, po.Status, StatusOrdered); err != nil {
		return err
	}
	po.Status = StatusReceived
	po.ReceivedDate = &at
	po.UpdatedAt = at
	return nil
}

func (po *PurchaseOrder) cancel(at time.Time) error {
	if err := shared.RequireState("purchase_order", po.ID, po.Status, StatusPending); err != nil {
		return err
	}
	po.Status = StatusCancelled
	po.CancelledAt = &at
	po.UpdatedAt = at
	return nil
}

// ErrNoLines indicates an order without lines.
var ErrNoLines = fmt.Errorf("procurement: at least one line required: %w", shared.ErrValidation)
