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
)

const (
	// TaskInventoryReconcile replays every product's movement log against its stock.
	TaskInventoryReconcile = "inventory:reconcile"
)

// InventoryReconcilePayload carries scheduling metadata.
type InventoryReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewInventoryReconcileTask constructs an Asynq task for the reconciliation run.
func NewInventoryReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(InventoryReconcilePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryReconcile, body, asynq.Queue(QueueDefault)), nil
}

// Reconciler is the ledger operation the job drives.
type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]inventory.Reconciliation, error)
}

// InventoryReconcileJob raises a stock_drift alert for every inconsistent product.
type InventoryReconcileJob struct {
	Ledger   Reconciler
	Notifier notify.Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle executes the reconciliation.
func (j *InventoryReconcileJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Ledger == nil {
		return errors.New("inventory reconcile: ledger not configured")
	}
	var payload InventoryReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskInventoryReconcile)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	drift, err := j.Ledger.ReconcileAll(ctx)
	if err != nil {
		j.Logger.Error("inventory reconcile failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddDrift(len(drift))
	for _, rec := range drift {
		j.Logger.Warn("stock drift detected",
			slog.Int64("product_id", rec.ProductID),
			slog.String("live", rec.Live.String()),
			slog.String("from_log", rec.FromLog.String()),
		)
		if j.Notifier == nil {
			continue
		}
		alert := notify.New(notify.KindStockDrift, "product", rec.ProductID)
		alert.Required = rec.FromLog
		alert.Available = rec.Live
		if nerr := j.Notifier.Notify(ctx, alert); nerr != nil {
			j.Logger.Warn("alert delivery failed", slog.Int64("product_id", rec.ProductID), slog.Any("error", nerr))
		}
	}
	j.Logger.Info("inventory reconcile completed",
		slog.Int("drift", len(drift)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
