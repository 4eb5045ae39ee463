package inventory_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _, _ := newLedger(t)
	router := chi.NewRouter()
	inventory.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(router)
	return router
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRegisterAndAdjust(t *testing.T) {
	router := newRouter(t)

	rec := do(t, router, http.MethodPost, "/products", `{"sku":"RM-H","name":"Copper","category":"raw-material","opening_stock":"10","unit_cost":"2"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID           int64  `json:"id"`
		CurrentStock string `json:"current_stock"`
		CurrentValue string `json:"current_value"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "10", created.CurrentStock)
	require.Equal(t, "20", created.CurrentValue)

	rec = do(t, router, http.MethodPost, "/adjustments", `{"product_id":1,"quantity":"11","decrease":true}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "insufficient_stock", problem.Code)
	require.Equal(t, "11", problem.Details["required"])
	require.Equal(t, "10", problem.Details["available"])

	rec = do(t, router, http.MethodPost, "/adjustments", `{"product_id":1,"quantity":"4","decrease":true,"note":"breakage"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/products/1/movements", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Movements []inventory.Movement `json:"movements"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Movements, 2)

	rec = do(t, router, http.MethodGet, "/products/1/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"consistent":true`)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	router := newRouter(t)

	rec := do(t, router, http.MethodPost, "/products", `{"sku":"","name":"x","category":"raw-material"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/products/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/products/42", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
