package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type quantityRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
}

func TestDecodeJSONValidatesDecimals(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":1,"quantity":"0"}`))
	var body quantityRequest
	err := DecodeJSON(req, &body)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":1,"quantity":"2.5"}`))
	require.NoError(t, DecodeJSON(req, &body))
	require.True(t, body.Quantity.Equal(decimal.RequireFromString("2.5")))
}

func TestRespondErrorCarriesStockDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &shared.InsufficientStockError{ProductID: 7, SKU: "RM-1", Required: decimal.NewFromInt(20), Available: decimal.NewFromInt(10)})
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "insufficient_stock", problem.Code)
	require.Equal(t, "20", problem.Details["required"])
	require.Equal(t, "10", problem.Details["available"])
}

func TestRespondErrorStatuses(t *testing.T) {
	cases := map[error]int{
		shared.NotFound("product", 1): http.StatusNotFound,
		&shared.InvalidStateError{Entity: "sales_order", ID: 1, Current: "confirmed", Required: "pending"}: http.StatusConflict,
		shared.ErrAlreadyPaid: http.StatusConflict,
		shared.ErrDuplicate:   http.StatusConflict,
		shared.ErrValidation:  http.StatusBadRequest,
	}
	for err, status := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, err)
		require.Equal(t, status, rec.Code, err.Error())
	}
}
