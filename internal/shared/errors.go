package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates an order number or account name collision.
	ErrDuplicate = errors.New("duplicate identifier")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidState occurs when a transition is attempted from the wrong state.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrInsufficientStock occurs when an outbound movement would drive stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientMaterial occurs when production cannot start for lack of material.
	ErrInsufficientMaterial = errors.New("insufficient material")
	// ErrInsufficientBalance occurs when an outgoing payment exceeds the account balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrAlreadyPaid occurs when paying an invoice twice.
	ErrAlreadyPaid = errors.New("invoice already paid")
)

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InvalidStateError reports the current state and the state the transition requires.
type InvalidStateError struct {
	Entity   string
	ID       int64
	Current  string
	Required string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %d is %s, requires %s", e.Entity, e.ID, e.Current, e.Required)
}

// Is matches ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// InsufficientStockError carries required versus available quantities.
type InsufficientStockError struct {
	ProductID int64
	SKU       string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: required %s, available %s", e.label(), e.Required, e.Available)
}

func (e *InsufficientStockError) label() string {
	if e.SKU != "" {
		return e.SKU
	}
	return fmt.Sprintf("product %d", e.ProductID)
}

// Is matches ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InsufficientMaterialError reports the first material shortfall of a production order.
type InsufficientMaterialError struct {
	OrderID   int64
	ProductID int64
	SKU       string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientMaterialError) Error() string {
	name := e.SKU
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	return fmt.Sprintf("insufficient material %s for production order %d: required %s, available %s", name, e.OrderID, e.Required, e.Available)
}

// Is matches ErrInsufficientMaterial.
func (e *InsufficientMaterialError) Is(target error) bool { return target == ErrInsufficientMaterial }

// InsufficientBalanceError carries required versus available bank balance.
type InsufficientBalanceError struct {
	AccountID int64
	Account   string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %q: required %s, available %s", e.Account, e.Required, e.Available)
}

// Is matches ErrInsufficientBalance.
func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }
