package replenishment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/notify"
)

// LocalDispatcher handles low-stock events in-process. Each event is processed on
// its own goroutine, detached from the triggering request.
type LocalDispatcher struct {
	scheduler *Scheduler
	notifier  notify.Notifier
	logger    *slog.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewLocalDispatcher constructs a LocalDispatcher.
func NewLocalDispatcher(scheduler *Scheduler, notifier notify.Notifier, logger *slog.Logger, timeout time.Duration) *LocalDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LocalDispatcher{scheduler: scheduler, notifier: notifier, logger: logger, timeout: timeout}
}

// HandleLowStock implements inventory.ReplenishmentTrigger.
func (d *LocalDispatcher) HandleLowStock(ctx context.Context, evt inventory.LowStockEvent) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		po, created, err := d.scheduler.TriggerProduct(ctx, evt.ProductID)
		if err != nil {
			d.logger.Error("replenishment dispatch failed",
				slog.Int64("product_id", evt.ProductID),
				slog.Any("error", err),
			)
			ReportFailure(ctx, d.notifier, d.logger, evt, err)
			return
		}
		if created {
			d.logger.Info("replenishment dispatched",
				slog.Int64("product_id", evt.ProductID),
				slog.Int64("purchase_order_id", po.ID),
			)
		}
	}()
}

// Wait blocks until every dispatched event has been processed.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

// ReportFailure alerts operators that generation failed for the event's product.
func ReportFailure(ctx context.Context, n notify.Notifier, logger *slog.Logger, evt inventory.LowStockEvent, err error) {
	if n == nil || err == nil {
		return
	}
	alert := notify.New(notify.KindReplenishmentFailed, "product", evt.ProductID)
	alert.Subject = evt.SKU
	alert.Required = evt.MinStockLevel
	alert.Available = evt.CurrentStock
	alert.Detail = err.Error()
	if nerr := n.Notify(ctx, alert); nerr != nil {
		logger.Warn("alert delivery failed", slog.String("kind", string(alert.Kind)), slog.Any("error", nerr))
	}
}
