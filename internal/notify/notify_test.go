package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestFromErrorMapsShortfalls(t *testing.T) {
	wrapped := fmt.Errorf("start: %w", &shared.InsufficientMaterialError{OrderID: 4, ProductID: 9, SKU: "RM-9", Required: decimal.NewFromInt(20), Available: decimal.NewFromInt(10)})
	alert, ok := FromError("production_order", 4, wrapped)
	require.True(t, ok)
	require.Equal(t, KindInsufficientMaterial, alert.Kind)
	require.Equal(t, "RM-9", alert.Subject)
	require.True(t, alert.Required.Equal(decimal.NewFromInt(20)))
	require.NotEmpty(t, alert.ID)

	alert, ok = FromError("sales_order", 1, &shared.InsufficientStockError{ProductID: 3})
	require.True(t, ok)
	require.Equal(t, "#3", alert.Subject)

	_, ok = FromError("sales_order", 1, shared.ErrInvalidState)
	require.False(t, ok)
}

func TestReportSwallowsDeliveryFailure(t *testing.T) {
	n := &recordingNotifier{err: errors.New("queue down")}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	Report(context.Background(), n, logger, "bank_account", 2, &shared.InsufficientBalanceError{AccountID: 2, Account: "Operating"})
	require.Len(t, n.alerts, 1)
	require.Contains(t, buf.String(), "alert delivery failed")

	Report(context.Background(), n, logger, "bank_account", 2, shared.ErrNotFound)
	require.Len(t, n.alerts, 1)
}

func TestFormatterLocales(t *testing.T) {
	alert := New(KindInsufficientStock, "sales_order", 1)
	alert.Subject = "FG-1"
	alert.Required = decimal.RequireFromString("1234.5")
	alert.Available = decimal.NewFromInt(10)

	en := NewFormatter("en")
	require.Equal(t, "Insufficient stock for FG-1", en.Subject(alert))
	require.Equal(t, "Required 1,234.5, available 10.", en.Body(alert))

	id := NewFormatter("id")
	require.Equal(t, "Stok tidak cukup untuk FG-1", id.Subject(alert))
	require.Contains(t, id.Body(alert), "Dibutuhkan")

	require.Equal(t, "Insufficient stock for FG-1", NewFormatter("not a locale!").Subject(alert))
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)), nil)
	alert := New(KindStockDrift, "product", 5)
	alert.Subject = "RM-5"
	require.NoError(t, n.Notify(context.Background(), alert))
	require.Contains(t, buf.String(), "Stock drift on RM-5")
	require.Contains(t, buf.String(), "kind=stock_drift")
}
