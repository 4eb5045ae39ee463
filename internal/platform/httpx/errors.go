// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ValidationError lists rejected request fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "validation failed" }

// Is matches shared.ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == shared.ErrValidation }

// RespondError maps domain errors to HTTP responses using RFC7807. Ledger failures
// carry their structured detail so clients can render required versus available.
func RespondError(w http.ResponseWriter, err error) {
	var (
		validationErr *ValidationError
		stockErr      *shared.InsufficientStockError
		materialErr   *shared.InsufficientMaterialError
		balanceErr    *shared.InsufficientBalanceError
		stateErr      *shared.InvalidStateError
		notFoundErr   *shared.NotFoundError
	)
	switch {
	case errors.As(err, &validationErr):
		fields := make(map[string]any, len(validationErr.Fields))
		for k, v := range validationErr.Fields {
			fields[k] = v
		}
		WriteProblem(w, ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Code: "validation", Details: fields})
	case errors.As(err, &stockErr):
		WriteProblem(w, ProblemDetail{Title: "Insufficient Stock", Status: http.StatusConflict, Detail: err.Error(), Code: "insufficient_stock", Details: map[string]any{
			"product_id": stockErr.ProductID,
			"sku":        stockErr.SKU,
			"required":   stockErr.Required.String(),
			"available":  stockErr.Available.String(),
		}})
	case errors.As(err, &materialErr):
		WriteProblem(w, ProblemDetail{Title: "Insufficient Material", Status: http.StatusConflict, Detail: err.Error(), Code: "insufficient_material", Details: map[string]any{
			"production_order_id": materialErr.OrderID,
			"product_id":          materialErr.ProductID,
			"sku":                 materialErr.SKU,
			"required":            materialErr.Required.String(),
			"available":           materialErr.Available.String(),
		}})
	case errors.As(err, &balanceErr):
		WriteProblem(w, ProblemDetail{Title: "Insufficient Balance", Status: http.StatusConflict, Detail: err.Error(), Code: "insufficient_balance", Details: map[string]any{
			"bank_account_id": balanceErr.AccountID,
			"required":        balanceErr.Required.String(),
			"available":       balanceErr.Available.String(),
		}})
	case errors.As(err, &stateErr):
		WriteProblem(w, ProblemDetail{Title: "Invalid State", Status: http.StatusConflict, Detail: err.Error(), Code: "invalid_state", Details: map[string]any{
			"entity":   stateErr.Entity,
			"id":       stateErr.ID,
			"current":  stateErr.Current,
			"required": stateErr.Required,
		}})
	case errors.Is(err, shared.ErrAlreadyPaid):
		WriteProblem(w, ProblemDetail{Title: "Already Paid", Status: http.StatusConflict, Detail: err.Error(), Code: "already_paid"})
	case errors.As(err, &notFoundErr):
		WriteProblem(w, ProblemDetail{Title: "Not Found", Status: http.StatusNotFound, Detail: err.Error(), Code: "not_found", Details: map[string]any{
			"entity": notFoundErr.Entity,
			"id":     notFoundErr.ID,
		}})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		WriteProblem(w, ProblemDetail{Title: "Duplicate", Status: http.StatusConflict, Detail: err.Error(), Code: "duplicate_identifier"})
	case errors.Is(err, shared.ErrValidation):
		WriteProblem(w, ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error(), Code: "validation"})
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
