package procurement_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

type fixture struct {
	store  *memory.Store
	ledger *inventory.Service
	svc    *procurement.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	ledger := inventory.NewService(store.Inventory(), store, store, inventory.ServiceConfig{})
	fixed := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := procurement.NewService(store.Procurement(), store, ledger, store, procurement.ServiceConfig{Clock: func() time.Time { return fixed }})
	return fixture{store: store, ledger: ledger, svc: svc}
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (f fixture) product(t *testing.T, sku string, stock, cost string) inventory.Product {
	t.Helper()
	p, err := f.ledger.RegisterProduct(context.Background(), inventory.ProductInput{
		SKU: sku, Name: sku, Category: inventory.CategoryRawMaterial, OpeningStock: d(stock), UnitCost: d(cost), SupplierID: 9,
	})
	require.NoError(t, err)
	return p
}

func TestCreateComputesTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "RM-A", "0", "1")
	b := f.product(t, "RM-B", "0", "1")

	po, err := f.svc.Create(ctx, procurement.CreateInput{
		SupplierID: 9,
		ActorID:    5,
		Lines: []procurement.LineInput{
			{ProductID: a.ID, Quantity: d("10"), UnitPrice: d("10")},
			{ProductID: b.ID, Quantity: d("1"), UnitPrice: d("50.5")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, procurement.StatusPending, po.Status)
	require.Equal(t, procurement.SourceManual, po.Source)
	require.False(t, po.AutoGenerated)
	require.True(t, po.Subtotal.Equal(d("150.5")))
	require.True(t, po.Tax.Equal(d("15.05")))
	require.True(t, po.Total.Equal(d("165.55")))
	require.Equal(t, "PO-20250314-", po.Number[:12])
	require.Len(t, po.Lines, 2)
}

func TestCreateValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "RM-V", "0", "1")

	_, err := f.svc.Create(ctx, procurement.CreateInput{SupplierID: 9})
	require.ErrorIs(t, err, procurement.ErrNoLines)

	_, err = f.svc.Create(ctx, procurement.CreateInput{Lines: []procurement.LineInput{{ProductID: p.ID, Quantity: d("1")}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(ctx, procurement.CreateInput{SupplierID: 9, Lines: []procurement.LineInput{{ProductID: p.ID, Quantity: d("0")}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(ctx, procurement.CreateInput{SupplierID: 9, Lines: []procurement.LineInput{{ProductID: 404, Quantity: d("1")}}})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReceiveBooksPurchaseMovements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "RM-R", "5", "2")

	po, err := f.svc.Create(ctx, procurement.CreateInput{SupplierID: 9, Lines: []procurement.LineInput{{ProductID: p.ID, Quantity: d("20"), UnitPrice: d("2.75")}}})
	require.NoError(t, err)

	_, err = f.svc.Receive(ctx, po.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalidState, "pending orders cannot be received")

	po, err = f.svc.MarkOrdered(ctx, po.ID, 1)
	require.NoError(t, err)
	require.Equal(t, procurement.StatusOrdered, po.Status)
	require.NotNil(t, po.OrderedAt)

	po, err = f.svc.Receive(ctx, po.ID, 1)
	require.NoError(t, err)
	require.Equal(t, procurement.StatusReceived, po.Status)
	require.NotNil(t, po.ReceivedDate)

	got, err := f.ledger.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentStock.Equal(d("25")))
	require.True(t, got.UnitCost.Equal(d("2.75")))

	movements, err := f.ledger.ListMovements(ctx, inventory.MovementFilter{Reference: inventory.ReferencePurchase, ReferenceID: po.ID})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, inventory.DirectionIn, movements[0].Direction)

	_, err = f.svc.Receive(ctx, po.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	got, err = f.ledger.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentStock.Equal(d("25")), "a second receipt must not book stock")
}

func TestCancelOnlyFromPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "RM-C", "0", "1")

	first, err := f.svc.Create(ctx, procurement.CreateInput{SupplierID: 9, Lines: []procurement.LineInput{{ProductID: p.ID, Quantity: d("1"), UnitPrice: d("1")}}})
	require.NoError(t, err)
	cancelled, err := f.svc.Cancel(ctx, first.ID, 1)
	require.NoError(t, err)
	require.Equal(t, procurement.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	second, err := f.svc.Create(ctx, procurement.CreateInput{SupplierID: 9, Lines: []procurement.LineInput{{ProductID: p.ID, Quantity: d("1"), UnitPrice: d("1")}}})
	require.NoError(t, err)
	_, err = f.svc.MarkOrdered(ctx, second.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, second.ID, 1)
	var stateErr *shared.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, "ordered", stateErr.Current)
}

func TestHasOpenAutoOrderAndListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "RM-F", "0", "1")

	open, err := f.svc.HasOpenAutoOrder(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, open)

	auto, err := f.svc.Create(ctx, procurement.CreateInput{SupplierID: 9, Source: procurement.SourceInventory, AutoGenerated: true, Lines: []procurement.LineInput{{ProductID: p.ID, Quantity: d("3"), UnitPrice: d("1")}}})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, procurement.CreateInput{SupplierID: 9, Lines: []procurement.LineInput{{ProductID: p.ID, Quantity: d("3"), UnitPrice: d("1")}}})
	require.NoError(t, err)

	open, err = f.svc.HasOpenAutoOrder(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, open)

	autos, err := f.svc.List(ctx, procurement.ListFilter{AutoOnly: true})
	require.NoError(t, err)
	require.Len(t, autos, 1)
	require.Equal(t, auto.ID, autos[0].ID)

	_, err = f.svc.Cancel(ctx, auto.ID, 0)
	require.NoError(t, err)
	open, err = f.svc.HasOpenAutoOrder(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, open)

	all, err := f.svc.List(ctx, procurement.ListFilter{ProductID: p.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestTransitionsAreAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "RM-AU", "0", "1")
	before := len(f.store.AuditLogs())

	po, err := f.svc.Create(ctx, procurement.CreateInput{SupplierID: 9, ActorID: 77, Lines: []procurement.LineInput{{ProductID: p.ID, Quantity: d("1"), UnitPrice: d("1")}}})
	require.NoError(t, err)
	_, err = f.svc.MarkOrdered(ctx, po.ID, 77)
	require.NoError(t, err)

	logs := f.store.AuditLogs()[before:]
	require.Len(t, logs, 2)
	require.Equal(t, "PO_CREATE", logs[0].Action)
	require.Equal(t, "PO_ORDER", logs[1].Action)
	require.Equal(t, int64(77), logs[1].ActorID)
}
