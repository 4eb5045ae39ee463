package finance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ErrTooPrecise rejects amounts with sub-cent fractions; balances are stored at
// two decimal places and the transaction log must reproduce them exactly.
var ErrTooPrecise = fmt.Errorf("finance: at most %d decimal places allowed: %w", shared.MoneyPlaces, shared.ErrValidation)

// BankAccount holds a single running balance.
type BankAccount struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Direction of money relative to the bank account.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// SourceType names the operation that created a transaction.
type SourceType string

const (
	SourceSalesInvoice    SourceType = "sales_invoice"
	SourcePurchaseInvoice SourceType = "purchase_invoice"
	SourceExpense         SourceType = "expense"
	SourceOpening         SourceType = "opening"
)

// Transaction is an immutable balance change.
type Transaction struct {
	ID            int64           `json:"id"`
	Direction     Direction       `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	BankAccountID int64           `json:"bank_account_id"`
	SourceType    SourceType      `json:"source_type"`
	SourceID      int64           `json:"source_id"`
	Notes         string          `json:"notes"`
	ActorID       int64           `json:"actor_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Signed returns the amount with the sign of its effect on the balance.
func (t Transaction) Signed() decimal.Decimal {
	if t.Direction == DirectionOut {
		return t.Amount.Neg()
	}
	return t.Amount
}

// InvoiceKind distinguishes receivables from payables.
type InvoiceKind string

const (
	KindSales    InvoiceKind = "sales"
	KindPurchase InvoiceKind = "purchase"
)

// Valid reports whether k is a known kind.
func (k InvoiceKind) Valid() bool {
	return k == KindSales || k == KindPurchase
}

// Direction is in for sales invoices and out for purchase invoices.
func (k InvoiceKind) Direction() Direction {
	if k == KindPurchase {
		return DirectionOut
	}
	return DirectionIn
}

// SourceType maps the kind to its transaction source.
func (k InvoiceKind) SourceType() SourceType {
	if k == KindPurchase {
		return SourcePurchaseInvoice
	}
	return SourceSalesInvoice
}

// InvoiceStatus is the invoice lifecycle state.
type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "draft"
	InvoiceSent  InvoiceStatus = "sent"
	InvoicePaid  InvoiceStatus = "paid"
)

// Invoice is a sales or purchase invoice.
type Invoice struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	Kind          InvoiceKind     `json:"kind"`
	PartyID       int64           `json:"party_id"`
	OrderID       int64           `json:"order_id,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Status        InvoiceStatus   `json:"status"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	TransactionID int64           `json:"transaction_id,omitempty"`
	BankAccountID int64           `json:"bank_account_id,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (inv *Invoice) send(at time.Time) error {
	if err := shared.RequireState("invoice", inv.ID, inv.Status, InvoiceDraft); err != nil {
		return err
	}
	inv.Status = InvoiceSent
	inv.UpdatedAt = at
	return nil
}

// Expense is an operating cost paid from a bank account.
type Expense struct {
	ID            int64           `json:"id"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	BankAccountID int64           `json:"bank_account_id"`
	TransactionID int64           `json:"transaction_id"`
	ActorID       int64           `json:"actor_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	BankAccountID int64
	SourceType    SourceType
	Limit         int
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	Kind   InvoiceKind
	Status InvoiceStatus
	Limit  int
}

// Reconciliation compares the live balance with the transaction log.
type Reconciliation struct {
	BankAccountID int64
	Live          decimal.Decimal
	FromLog       decimal.Decimal
	Transactions  int
}

// Consistent reports whether the log reproduces the live balance.
func (r Reconciliation) Consistent() bool {
	return r.Live.Equal(r.FromLog)
}
