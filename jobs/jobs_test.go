package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/notify"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/replenishment"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type alertSink struct {
	mu     sync.Mutex
	alerts []notify.Alert
	err    error
}

func (s *alertSink) Notify(_ context.Context, alert notify.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *alertSink) kinds() []notify.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Kind, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a.Kind)
	}
	return out
}

func newQueueClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()}, quietLogger(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestHandleLowStockQueuesOneCheckPerProduct(t *testing.T) {
	client, mr := newQueueClient(t)
	evt := inventory.LowStockEvent{ProductID: 7, SKU: "STEEL", CurrentStock: decimal.NewFromInt(40), MinStockLevel: decimal.NewFromInt(100)}

	client.HandleLowStock(context.Background(), evt)
	client.HandleLowStock(context.Background(), evt)
	client.HandleLowStock(context.Background(), inventory.LowStockEvent{ProductID: 8, SKU: "BOLT"})
	client.Wait()

	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestHandleLowStockOutlivesRequestContext(t *testing.T) {
	client, mr := newQueueClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client.HandleLowStock(ctx, inventory.LowStockEvent{ProductID: 9, SKU: "PAINT"})
	client.Wait()

	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestNotifyEnqueuesAlertOnce(t *testing.T) {
	client, mr := newQueueClient(t)
	alert := notify.New(notify.KindStockDrift, "product", 3)

	require.NoError(t, client.Notify(context.Background(), alert))
	require.NoError(t, client.Notify(context.Background(), alert))

	pending, err := mr.List("asynq:{critical}:pending")
	require.NoError(t, err)
	assert.Equal(t, []string{alert.ID}, pending)
}

func TestAlertJobDeliversAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := &alertSink{}
	job := &AlertJob{Notifier: sink, Logger: quietLogger(), Metrics: jobmetrics.NewMetrics(reg)}

	task, err := NewAlertTask(notify.New(notify.KindInsufficientStock, "sales_order", 9))
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, []notify.Kind{notify.KindInsufficientStock}, sink.kinds())

	count, err := testutil.GatherAndCount(reg, "odyssey_alerts_delivered_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	bad := asynq.NewTask(TaskAlertSend, []byte("{"))
	assert.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

func TestAlertJobPropagatesDeliveryFailure(t *testing.T) {
	sink := &alertSink{err: errors.New("smtp down")}
	job := &AlertJob{Notifier: sink, Logger: quietLogger()}
	task, err := NewAlertTask(notify.New(notify.KindStockDrift, "product", 1))
	require.NoError(t, err)
	assert.Error(t, job.Handle(context.Background(), task))
}

func TestInventoryReconcileRaisesDriftAlerts(t *testing.T) {
	store := memory.New()
	ledger := inventory.NewService(store.Inventory(), store, store, inventory.ServiceConfig{})
	ctx := context.Background()
	ok, err := ledger.RegisterProduct(ctx, inventory.ProductInput{SKU: "OK", Name: "ok", Category: inventory.CategoryRawMaterial, OpeningStock: decimal.NewFromInt(10)})
	require.NoError(t, err)
	drifted, err := ledger.RegisterProduct(ctx, inventory.ProductInput{SKU: "DRIFT", Name: "drift", Category: inventory.CategoryRawMaterial, OpeningStock: decimal.NewFromInt(10)})
	require.NoError(t, err)
	store.Inventory().SetStockUnsafe(drifted.ID, decimal.NewFromInt(4))

	reg := prometheus.NewRegistry()
	sink := &alertSink{}
	job := &InventoryReconcileJob{Ledger: ledger, Notifier: sink, Logger: quietLogger(), Metrics: jobmetrics.NewMetrics(reg)}
	task, err := NewInventoryReconcileTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))

	sink.mu.Lock()
	require.Len(t, sink.alerts, 1)
	alert := sink.alerts[0]
	sink.mu.Unlock()
	assert.Equal(t, notify.KindStockDrift, alert.Kind)
	assert.Equal(t, drifted.ID, alert.EntityID)
	assert.NotEqual(t, ok.ID, alert.EntityID)
	assert.True(t, alert.Available.Equal(decimal.NewFromInt(4)))
	assert.True(t, alert.Required.Equal(decimal.NewFromInt(10)))
}

type stubGenerator struct {
	err     error
	scanErr error
	calls   []int64
}

func (g *stubGenerator) GenerateForProduct(_ context.Context, id int64) (procurement.PurchaseOrder, bool, error) {
	g.calls = append(g.calls, id)
	if g.err != nil {
		return procurement.PurchaseOrder{}, false, g.err
	}
	return procurement.PurchaseOrder{ID: 1, Number: "PO-1"}, true, nil
}

func (g *stubGenerator) RunOnce(context.Context) (replenishment.Report, error) {
	return replenishment.Report{}, g.scanErr
}

func TestReplenishmentCheckRunsGenerator(t *testing.T) {
	gen := &stubGenerator{}
	sink := &alertSink{}
	job := &ReplenishmentJob{Scheduler: gen, Notifier: sink, Logger: quietLogger()}
	task, err := NewReplenishmentCheckTask(inventory.LowStockEvent{ProductID: 12, SKU: "STEEL"}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, job.HandleCheck(context.Background(), task))
	assert.Equal(t, []int64{12}, gen.calls)
	assert.Empty(t, sink.kinds())
}

func TestReplenishmentCheckFailureAlerts(t *testing.T) {
	gen := &stubGenerator{err: errors.New("supplier offline")}
	sink := &alertSink{}
	job := &ReplenishmentJob{Scheduler: gen, Notifier: sink, Logger: quietLogger()}
	task, err := NewReplenishmentCheckTask(inventory.LowStockEvent{ProductID: 12, SKU: "STEEL"}, time.Minute)
	require.NoError(t, err)

	require.Error(t, job.HandleCheck(context.Background(), task))
	assert.Equal(t, []notify.Kind{notify.KindReplenishmentFailed}, sink.kinds())
}

func TestReplenishmentScanTreatsRunningScanAsSuccess(t *testing.T) {
	job := &ReplenishmentJob{Scheduler: &stubGenerator{scanErr: replenishment.ErrRunInProgress}, Logger: quietLogger()}
	assert.NoError(t, job.HandleScan(context.Background(), NewReplenishmentScanTask()))

	job.Scheduler = &stubGenerator{scanErr: errors.New("db down")}
	assert.Error(t, job.HandleScan(context.Background(), NewReplenishmentScanTask()))
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	assert.Error(t, err)
}

type fakeInspector struct {
	infos map[string]*asynq.QueueInfo
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := f.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthReportsQueues(t *testing.T) {
	h := NewHandler(fakeInspector{infos: map[string]*asynq.QueueInfo{
		QueueDefault: {Queue: QueueDefault, Pending: 3, Retry: 1},
	}}, quietLogger())
	r := chi.NewRouter()
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Queues []queueHealth `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Queues, 2)
	assert.Equal(t, queueHealth{Queue: QueueCritical}, body.Queues[0])
	assert.Equal(t, queueHealth{Queue: QueueDefault, Pending: 3, Retry: 1}, body.Queues[1])
}
