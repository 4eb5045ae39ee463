package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger    *slog.Logger
	formatter *Formatter
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *slog.Logger, formatter *Formatter) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if formatter == nil {
		formatter = NewFormatter("en")
	}
	return &LogNotifier{logger: logger, formatter: formatter}
}

// Notify logs the alert at warn level.
func (n *LogNotifier) Notify(_ context.Context, a Alert) error {
	n.logger.Warn(n.formatter.Subject(a),
		slog.String("alert_id", a.ID),
		slog.String("kind", string(a.Kind)),
		slog.String("entity", a.Entity),
		slog.Int64("entity_id", a.EntityID),
		slog.String("detail", n.formatter.Body(a)),
	)
	return nil
}
