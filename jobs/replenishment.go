package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/notify"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/replenishment"
)

const (
	// TaskReplenishmentCheck evaluates one product after a decreasing movement.
	TaskReplenishmentCheck = "replenishment:check"
	// TaskReplenishmentScan runs the full auto purchase order scan.
	TaskReplenishmentScan = "replenishment:scan"
)

// ReplenishmentCheckPayload identifies the product to evaluate. It carries no
// event-specific fields so the unique lock keys on the product alone.
type ReplenishmentCheckPayload struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
}

// NewReplenishmentCheckTask builds the per-product task. While one is queued for a
// product, further events for it are dropped by the unique lock.
func NewReplenishmentCheckTask(evt inventory.LowStockEvent, uniqueFor time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(ReplenishmentCheckPayload{ProductID: evt.ProductID, SKU: evt.SKU})
	if err != nil {
		return nil, err
	}
	if uniqueFor <= 0 {
		uniqueFor = time.Minute
	}
	return asynq.NewTask(TaskReplenishmentCheck, body,
		asynq.Queue(QueueDefault),
		asynq.Unique(uniqueFor),
		asynq.MaxRetry(5),
	), nil
}

// NewReplenishmentScanTask builds the scheduled scan task.
func NewReplenishmentScanTask() *asynq.Task {
	return asynq.NewTask(TaskReplenishmentScan, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// Generator is the scheduler surface the replenishment jobs drive.
type Generator interface {
	GenerateForProduct(ctx context.Context, productID int64) (procurement.PurchaseOrder, bool, error)
	RunOnce(ctx context.Context) (replenishment.Report, error)
}

// ReplenishmentJob handles both replenishment task types.
type ReplenishmentJob struct {
	Scheduler Generator
	Notifier  notify.Notifier
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// HandleCheck evaluates one product. Failures are retried; operators are alerted
// only once the last retry has failed.
func (j *ReplenishmentJob) HandleCheck(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Scheduler == nil {
		return errors.New("replenishment check: scheduler not configured")
	}
	var payload ReplenishmentCheckPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.ProductID <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskReplenishmentCheck)
	defer func() { err = tracker.End(err) }()

	logger := j.Logger.With(slog.Int64("product_id", payload.ProductID), slog.String("sku", payload.SKU))
	po, created, err := j.Scheduler.GenerateForProduct(ctx, payload.ProductID)
	if err != nil {
		logger.Error("replenishment check failed", slog.Any("error", err))
		if finalAttempt(ctx) {
			replenishment.ReportFailure(ctx, j.Notifier, logger, inventory.LowStockEvent{ProductID: payload.ProductID, SKU: payload.SKU}, err)
		}
		return err
	}
	if created {
		logger.Info("auto purchase order created", slog.Int64("purchase_order_id", po.ID), slog.String("number", po.Number))
	}
	return nil
}

// HandleScan runs the full scan. A scan already running elsewhere is not an error.
func (j *ReplenishmentJob) HandleScan(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Scheduler == nil {
		return errors.New("replenishment scan: scheduler not configured")
	}
	tracker := j.Metrics.Track(TaskReplenishmentScan)
	defer func() { err = tracker.End(err) }()

	report, err := j.Scheduler.RunOnce(ctx)
	if errors.Is(err, replenishment.ErrRunInProgress) {
		j.Logger.Info("replenishment scan skipped", slog.Any("reason", err))
		return nil
	}
	if err != nil {
		j.Logger.Error("replenishment scan failed",
			slog.Int("created", len(report.Created)),
			slog.Int("failed", len(report.Failed)),
			slog.Any("error", err),
		)
	}
	return err
}

func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	max, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= max
}
