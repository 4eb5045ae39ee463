package replenishment_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/notify"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/replenishment"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

type outcomeCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *outcomeCounter) ObserveReplenishment(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[outcome]++
}

func (c *outcomeCounter) get(outcome string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[outcome]
}

type fixture struct {
	ledger    *inventory.Service
	orders    *procurement.Service
	scheduler *replenishment.Scheduler
	metrics   *outcomeCounter
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newFixture(t *testing.T, cfg replenishment.Config) fixture {
	t.Helper()
	store := memory.New()
	ledger := inventory.NewService(store.Inventory(), store, store, inventory.ServiceConfig{})
	orders := procurement.NewService(store.Procurement(), store, ledger, store, procurement.ServiceConfig{})
	metrics := &outcomeCounter{}
	cfg.Metrics = metrics
	cfg.Logger = quietLogger()
	scheduler := replenishment.NewScheduler(ledger, orders, store, cfg)
	return fixture{ledger: ledger, orders: orders, scheduler: scheduler, metrics: metrics}
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (f fixture) rawMaterial(t *testing.T, sku, stock string, supplier int64) inventory.Product {
	t.Helper()
	p, err := f.ledger.RegisterProduct(context.Background(), inventory.ProductInput{
		SKU:           sku,
		Name:          sku,
		Category:      inventory.CategoryRawMaterial,
		OpeningStock:  d(stock),
		MinStockLevel: d("100"),
		MaxStockLevel: d("500"),
		UnitCost:      d("2.5"),
		SupplierID:    supplier,
	})
	require.NoError(t, err)
	return p
}

func TestScanCreatesAutoPurchaseOrder(t *testing.T) {
	f := newFixture(t, replenishment.Config{})
	ctx := context.Background()
	p := f.rawMaterial(t, "RM-P", "50", 11)
	f.rawMaterial(t, "RM-FULL", "300", 11)
	f.rawMaterial(t, "RM-NOSUP", "10", 0)

	report, err := f.scheduler.GenerateAutoPurchaseOrders(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Scanned)
	require.Len(t, report.Created, 1)

	po := report.Created[0]
	require.Equal(t, procurement.StatusPending, po.Status)
	require.True(t, po.AutoGenerated)
	require.Equal(t, procurement.SourceInventory, po.Source)
	require.Equal(t, int64(11), po.SupplierID)
	require.Len(t, po.Lines, 1)
	require.Equal(t, p.ID, po.Lines[0].ProductID)
	require.True(t, po.Lines[0].Quantity.Equal(d("450")))
	require.True(t, po.Lines[0].UnitPrice.Equal(d("2.5")))
	require.Equal(t, 1, f.metrics.get(string(replenishment.OutcomeCreated)))
}

func TestReorderQuantityFallsBackToMinimum(t *testing.T) {
	f := newFixture(t, replenishment.Config{})
	ctx := context.Background()
	p, err := f.ledger.RegisterProduct(ctx, inventory.ProductInput{
		SKU: "RM-SMALL", Name: "small", Category: inventory.CategoryRawMaterial,
		OpeningStock: d("90"), MinStockLevel: d("100"), MaxStockLevel: d("120"), SupplierID: 2,
	})
	require.NoError(t, err)

	po, created, err := f.scheduler.GenerateForProduct(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, po.Lines[0].Quantity.Equal(d("100")), "max(120-90, 100)")
}

func TestRepeatedScansDoNotDuplicateOpenOrders(t *testing.T) {
	f := newFixture(t, replenishment.Config{})
	ctx := context.Background()
	p := f.rawMaterial(t, "RM-D", "50", 11)

	_, err := f.scheduler.GenerateAutoPurchaseOrders(ctx)
	require.NoError(t, err)
	report, err := f.scheduler.GenerateAutoPurchaseOrders(ctx)
	require.NoError(t, err)
	require.Empty(t, report.Created)
	require.Equal(t, []int64{p.ID}, report.Skipped)
	require.Equal(t, 1, f.metrics.get(string(replenishment.OutcomeDuplicate)))

	orders, err := f.orders.List(ctx, procurement.ListFilter{ProductID: p.ID})
	require.NoError(t, err)
	require.Len(t, orders, 1)

	// Once the open order is cancelled a new one may be raised.
	_, err = f.orders.Cancel(ctx, orders[0].ID, 0)
	require.NoError(t, err)
	report, err = f.scheduler.GenerateAutoPurchaseOrders(ctx)
	require.NoError(t, err)
	require.Len(t, report.Created, 1)
}

func TestConcurrentGenerationCreatesOneOrder(t *testing.T) {
	f := newFixture(t, replenishment.Config{})
	ctx := context.Background()
	p := f.rawMaterial(t, "RM-C", "10", 4)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = f.scheduler.GenerateForProduct(ctx, p.ID)
		}()
	}
	wg.Wait()

	orders, err := f.orders.List(ctx, procurement.ListFilter{ProductID: p.ID, AutoOnly: true})
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestReceivedOrderClearsCandidate(t *testing.T) {
	f := newFixture(t, replenishment.Config{})
	ctx := context.Background()
	p := f.rawMaterial(t, "RM-R", "50", 4)

	report, err := f.scheduler.GenerateAutoPurchaseOrders(ctx)
	require.NoError(t, err)
	po := report.Created[0]
	_, err = f.orders.MarkOrdered(ctx, po.ID, 1)
	require.NoError(t, err)
	_, err = f.orders.Receive(ctx, po.ID, 1)
	require.NoError(t, err)

	got, err := f.ledger.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentStock.Equal(d("500")))

	report, err = f.scheduler.GenerateAutoPurchaseOrders(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Scanned)
}

func TestRunOnceSkipsWhenLeaseHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := replenishment.NewRedisLocker(client)

	f := newFixture(t, replenishment.Config{Locker: locker, LockKey: "test:scan", RunTimeout: time.Minute})
	ctx := context.Background()
	f.rawMaterial(t, "RM-L", "50", 4)

	release, ok, err := locker.Acquire(ctx, "test:scan", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.scheduler.RunOnce(ctx)
	require.ErrorIs(t, err, replenishment.ErrRunInProgress)

	release(ctx)
	require.False(t, mr.Exists("test:scan"))

	report, err := f.scheduler.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, report.Created, 1)
	require.False(t, mr.Exists("test:scan"), "lease released after the run")
}

func TestRedisLockerReleaseKeepsForeignLease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := replenishment.NewRedisLocker(client)
	ctx := context.Background()

	release, ok, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired lease can be taken over")

	release(ctx)
	require.True(t, mr.Exists("k"), "stale holder must not delete the new lease")
}

func TestLocalDispatcherRaisesOrderAfterSale(t *testing.T) {
	f := newFixture(t, replenishment.Config{})
	ctx := context.Background()
	p := f.rawMaterial(t, "RM-S", "120", 6)
	dispatcher := replenishment.NewLocalDispatcher(f.scheduler, nil, quietLogger(), time.Second)
	f.ledger.SetTrigger(dispatcher)

	_, _, err := f.ledger.ApplyMovement(ctx, inventory.MovementInput{ProductID: p.ID, Direction: inventory.DirectionOut, Quantity: d("30"), Reference: inventory.ReferenceSale})
	require.NoError(t, err)
	dispatcher.Wait()

	orders, err := f.orders.List(ctx, procurement.ListFilter{ProductID: p.ID, AutoOnly: true})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.True(t, orders[0].Lines[0].Quantity.Equal(d("410")))
}

type failingOrders struct{}

func (failingOrders) Create(context.Context, procurement.CreateInput) (procurement.PurchaseOrder, error) {
	return procurement.PurchaseOrder{}, errors.New("supplier catalogue offline")
}

func (failingOrders) HasOpenAutoOrder(context.Context, int64) (bool, error) { return false, nil }

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

func TestFailuresAreIsolatedAndReported(t *testing.T) {
	store := memory.New()
	ledger := inventory.NewService(store.Inventory(), store, store, inventory.ServiceConfig{})
	scheduler := replenishment.NewScheduler(ledger, failingOrders{}, store, replenishment.Config{Logger: quietLogger()})
	ctx := context.Background()
	for _, sku := range []string{"A", "B"} {
		_, err := ledger.RegisterProduct(ctx, inventory.ProductInput{SKU: sku, Category: inventory.CategoryRawMaterial, OpeningStock: d("1"), MinStockLevel: d("5"), SupplierID: 1})
		require.NoError(t, err)
	}

	report, err := scheduler.GenerateAutoPurchaseOrders(ctx)
	require.Error(t, err)
	require.Equal(t, 2, report.Scanned)
	require.Len(t, report.Failed, 2)
	require.ErrorContains(t, err, "supplier catalogue offline")

	alerts := &alertSink{}
	dispatcher := replenishment.NewLocalDispatcher(scheduler, alerts, quietLogger(), time.Second)
	dispatcher.HandleLowStock(ctx, inventory.LowStockEvent{ProductID: 1, SKU: "A", CurrentStock: d("1"), MinStockLevel: d("5")})
	dispatcher.Wait()
	require.Len(t, alerts.alerts, 1)
	require.Equal(t, notify.KindReplenishmentFailed, alerts.alerts[0].Kind)
}
