package push

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
)

// LogNotifier writes notifications to the log instead of delivering them.
// It is used when push delivery is disabled and always reports not sent.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, notif domain.Notification) (bool, error) {
	n.logger.Info("push disabled, notification not delivered",
		"alert_id", notif.Data.AlertID,
		"title", notif.Title,
		"body", notif.Body,
	)
	return false, nil
}
