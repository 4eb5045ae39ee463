package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries operator alerts ahead of routine work.
	QueueCritical = "critical"
	// TaskAlertSend delivers one ledger alert.
	TaskAlertSend = "alert:send"
)

// NewAlertTask constructs an Asynq task carrying the alert. The alert id doubles
// as the task id so a re-enqueued alert is delivered once.
func NewAlertTask(alert notify.Alert) (*asynq.Task, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAlertSend, data, asynq.Queue(QueueCritical), asynq.TaskID(alert.ID), asynq.MaxRetry(10)), nil
}

// AlertJob hands queued alerts to the downstream notifier.
type AlertJob struct {
	Notifier notify.Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle processes TaskAlertSend tasks.
func (j *AlertJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Notifier == nil {
		return errors.New("alert job: notifier not configured")
	}
	var alert notify.Alert
	if err := json.Unmarshal(t.Payload(), &alert); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskAlertSend)
	defer func() { err = tracker.End(err) }()

	if err = j.Notifier.Notify(ctx, alert); err != nil {
		j.Logger.Warn("alert delivery failed", slog.String("alert_id", alert.ID), slog.Any("error", err))
		return err
	}
	j.Metrics.AlertDelivered(string(alert.Kind))
	return nil
}
