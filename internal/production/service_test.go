package production_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/notify"
	"github.com/odyssey-erp/odyssey-ledger/internal/production"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

type alertSink struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (s *alertSink) Notify(_ context.Context, alert notify.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

type fixture struct {
	store  *memory.Store
	ledger *inventory.Service
	svc    *production.Service
	alerts *alertSink
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	ledger := inventory.NewService(store.Inventory(), store, store, inventory.ServiceConfig{})
	alerts := &alertSink{}
	svc := production.NewService(store.Production(), store, ledger, store, production.ServiceConfig{Notifier: alerts})
	return fixture{store: store, ledger: ledger, svc: svc, alerts: alerts}
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (f fixture) product(t *testing.T, sku string, category inventory.Category, stock, cost string) inventory.Product {
	t.Helper()
	p, err := f.ledger.RegisterProduct(context.Background(), inventory.ProductInput{SKU: sku, Name: sku, Category: category, OpeningStock: d(stock), UnitCost: d(cost)})
	require.NoError(t, err)
	return p
}

func (f fixture) stock(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	p, err := f.ledger.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.CurrentStock
}

func TestCreateRequiresMaterials(t *testing.T) {
	f := newFixture(t)
	fg := f.product(t, "FG", inventory.CategoryFinishedGood, "0", "0")

	_, err := f.svc.Create(context.Background(), production.CreateInput{ProductID: fg.ID, Quantity: d("1")})
	require.ErrorIs(t, err, production.ErrNoMaterials)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestStartFailsOnFirstShortfallWithoutMovements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fg := f.product(t, "FG", inventory.CategoryFinishedGood, "0", "0")
	plenty := f.product(t, "RM-OK", inventory.CategoryRawMaterial, "100", "1")
	scarce := f.product(t, "RM-M", inventory.CategoryRawMaterial, "10", "1")
	alsoScarce := f.product(t, "RM-Z", inventory.CategoryRawMaterial, "0", "1")

	order, err := f.svc.Create(ctx, production.CreateInput{
		ProductID: fg.ID,
		Quantity:  d("1"),
		Materials: []production.Material{
			{ProductID: plenty.ID, Quantity: d("5")},
			{ProductID: scarce.ID, Quantity: d("20")},
			{ProductID: alsoScarce.ID, Quantity: d("1")},
		},
	})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, order.ID, 1)
	require.ErrorIs(t, err, shared.ErrInsufficientMaterial)
	var materialErr *shared.InsufficientMaterialError
	require.ErrorAs(t, err, &materialErr)
	require.Equal(t, scarce.ID, materialErr.ProductID)
	require.Equal(t, order.ID, materialErr.OrderID)
	require.True(t, materialErr.Required.Equal(d("20")))
	require.True(t, materialErr.Available.Equal(d("10")))

	got, err := f.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, production.StatusPending, got.Status)
	require.Nil(t, got.StartDate)
	require.True(t, f.stock(t, plenty.ID).Equal(d("100")))
	require.True(t, f.stock(t, scarce.ID).Equal(d("10")))

	movements, err := f.ledger.ListMovements(ctx, inventory.MovementFilter{Reference: inventory.ReferenceProduction})
	require.NoError(t, err)
	require.Empty(t, movements)

	require.Len(t, f.alerts.alerts, 1)
	require.Equal(t, notify.KindInsufficientMaterial, f.alerts.alerts[0].Kind)
	require.Equal(t, "RM-M", f.alerts.alerts[0].Subject)
}

func TestCreateRejectsRepeatedMaterial(t *testing.T) {
	f := newFixture(t)
	fg := f.product(t, "FG", inventory.CategoryFinishedGood, "0", "0")
	rm := f.product(t, "RM", inventory.CategoryRawMaterial, "10", "1")

	_, err := f.svc.Create(context.Background(), production.CreateInput{
		ProductID: fg.ID,
		Quantity:  d("1"),
		Materials: []production.Material{{ProductID: rm.ID, Quantity: d("6")}, {ProductID: rm.ID, Quantity: d("6")}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestStartSumsRepeatedMaterialLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fg := f.product(t, "FG", inventory.CategoryFinishedGood, "0", "0")
	rm := f.product(t, "RM", inventory.CategoryRawMaterial, "10", "1")

	// Orders stored before repeated lines were rejected can still carry them.
	order, err := f.store.Production().CreateOrder(ctx, production.Order{
		Number:    "MO-LEGACY-1",
		ProductID: fg.ID,
		Quantity:  d("1"),
		Status:    production.StatusPending,
		Materials: []production.Material{{ProductID: rm.ID, Quantity: d("6"), UnitCost: d("1")}, {ProductID: rm.ID, Quantity: d("6"), UnitCost: d("1")}},
	})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, order.ID, 1)
	require.ErrorIs(t, err, shared.ErrInsufficientMaterial)
	require.NotErrorIs(t, err, shared.ErrInsufficientStock)
	var materialErr *shared.InsufficientMaterialError
	require.ErrorAs(t, err, &materialErr)
	require.Equal(t, rm.ID, materialErr.ProductID)
	require.True(t, materialErr.Required.Equal(d("12")))
	require.True(t, materialErr.Available.Equal(d("10")))
	require.True(t, f.stock(t, rm.ID).Equal(d("10")))
}

func TestStartAndCompleteBookMovements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fg := f.product(t, "FG", inventory.CategoryFinishedGood, "0", "0")
	steel := f.product(t, "STEEL", inventory.CategoryRawMaterial, "50", "3")
	bolt := f.product(t, "BOLT", inventory.CategoryComponent, "40", "0.5")

	order, err := f.svc.Create(ctx, production.CreateInput{
		ProductID: fg.ID,
		Quantity:  d("4"),
		Materials: []production.Material{
			{ProductID: steel.ID, Quantity: d("8")},
			{ProductID: bolt.ID, Quantity: d("16"), UnitCost: d("0.75")},
		},
	})
	require.NoError(t, err)
	require.True(t, order.Materials[0].UnitCost.Equal(d("3")), "unset cost defaults to the product cost")

	_, err = f.svc.Complete(ctx, order.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	started, err := f.svc.Start(ctx, order.ID, 1)
	require.NoError(t, err)
	require.Equal(t, production.StatusInProgress, started.Status)
	require.NotNil(t, started.StartDate)
	require.True(t, f.stock(t, steel.ID).Equal(d("42")))
	require.True(t, f.stock(t, bolt.ID).Equal(d("24")))

	_, err = f.svc.Start(ctx, order.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	_, err = f.svc.Cancel(ctx, order.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	done, err := f.svc.Complete(ctx, order.ID, 1)
	require.NoError(t, err)
	require.Equal(t, production.StatusCompleted, done.Status)
	require.NotNil(t, done.EndDate)

	finished, err := f.ledger.GetProduct(ctx, fg.ID)
	require.NoError(t, err)
	require.True(t, finished.CurrentStock.Equal(d("4")))
	// (8*3 + 16*0.75) / 4
	require.True(t, finished.UnitCost.Equal(d("9")), finished.UnitCost.String())

	movements, err := f.ledger.ListMovements(ctx, inventory.MovementFilter{Reference: inventory.ReferenceProduction, ReferenceID: order.ID})
	require.NoError(t, err)
	require.Len(t, movements, 3)
}

func TestCancelPendingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fg := f.product(t, "FG", inventory.CategoryFinishedGood, "0", "0")
	rm := f.product(t, "RM", inventory.CategoryRawMaterial, "1", "1")

	order, err := f.svc.Create(ctx, production.CreateInput{ProductID: fg.ID, Quantity: d("1"), Materials: []production.Material{{ProductID: rm.ID, Quantity: d("1")}}})
	require.NoError(t, err)
	cancelled, err := f.svc.Cancel(ctx, order.ID, 1)
	require.NoError(t, err)
	require.Equal(t, production.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.svc.Start(ctx, order.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Empty(t, f.alerts.alerts, "state errors are not alerted")
}

func TestBillOfMaterialsDrivesSalesDemand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fg := f.product(t, "CHAIR", inventory.CategoryFinishedGood, "0", "0")
	wood := f.product(t, "WOOD", inventory.CategoryRawMaterial, "100", "2")
	screw := f.product(t, "SCREW", inventory.CategoryComponent, "100", "0.1")

	_, err := f.svc.CreateForSalesOrder(ctx, production.SalesDemand{SalesOrderID: 1, ProductID: fg.ID, Quantity: d("2")})
	require.True(t, production.IsNoBOM(err))

	_, err = f.svc.SetBOM(ctx, wood.ID, []production.ComponentInput{{ComponentID: screw.ID, Quantity: d("1")}})
	require.ErrorIs(t, err, shared.ErrValidation, "raw materials carry no BOM")
	_, err = f.svc.SetBOM(ctx, fg.ID, []production.ComponentInput{{ComponentID: fg.ID, Quantity: d("1")}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.SetBOM(ctx, fg.ID, []production.ComponentInput{
		{ComponentID: wood.ID, Quantity: d("3")},
		{ComponentID: screw.ID, Quantity: d("8")},
	})
	require.NoError(t, err)
	bom, err := f.svc.BOM(ctx, fg.ID)
	require.NoError(t, err)
	require.Len(t, bom, 2)

	order, err := f.svc.CreateForSalesOrder(ctx, production.SalesDemand{SalesOrderID: 12, ProductID: fg.ID, Quantity: d("2"), ActorID: 4})
	require.NoError(t, err)
	require.Equal(t, int64(12), order.SalesOrderID)
	require.Equal(t, production.StatusPending, order.Status)
	require.Len(t, order.Materials, 2)
	require.True(t, order.Materials[0].Quantity.Equal(d("6")))
	require.True(t, order.Materials[1].Quantity.Equal(d("16")))

	listed, err := f.svc.List(ctx, production.ListFilter{SalesOrderID: 12})
	require.NoError(t, err)
	require.Len(t, listed, 1)
}
