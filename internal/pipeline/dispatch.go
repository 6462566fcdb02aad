package pipeline

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
	"github.com/couchcryptid/flow-alert-service/internal/observability"
)

// TokenStore looks up a user's push delivery token.
type TokenStore interface {
	GetPushToken(ctx context.Context, userID string) (domain.PushToken, bool, error)
}

// Notifier delivers a rendered notification and reports whether it was accepted.
type Notifier interface {
	Send(ctx context.Context, n domain.Notification) (bool, error)
}

// HistoryWriter records alert outcomes. Writes are idempotent on
// (user id, alert id).
type HistoryWriter interface {
	UpsertAlert(ctx context.Context, rec domain.AlertRecord) error
}

// AlertPublisher emits recorded alerts to downstream consumers.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, rec domain.AlertRecord) error
}

// Dispatcher renders alerts, hands them to the notifier, and records the
// outcome in history whether or not delivery succeeded.
type Dispatcher struct {
	tokens    TokenStore
	notifier  Notifier
	history   HistoryWriter
	publisher AlertPublisher
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. publisher may be nil.
func NewDispatcher(tokens TokenStore, notifier Notifier, history HistoryWriter, publisher AlertPublisher, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		tokens:    tokens,
		notifier:  notifier,
		history:   history,
		publisher: publisher,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// Dispatch delivers one alert and reports whether it was sent. Missing
// tokens and notifier failures are not errors: the alert is recorded with
// sent=false. History and publish failures are logged and not retried.
func (d *Dispatcher) Dispatch(ctx context.Context, alert domain.Alert) bool {
	log := d.logger.With("user_id", alert.UserID, "river_id", alert.RiverID, "alert_id", alert.AlertID)

	sent := d.send(ctx, alert, log)
	rec := domain.AlertRecord{Alert: alert, Sent: sent}
	if sent {
		sentAt := d.clock.Now()
		rec.SentAt = &sentAt
	}

	if err := d.history.UpsertAlert(ctx, rec); err != nil {
		log.Error("record alert history failed", "error", err)
	}

	if d.publisher != nil {
		if err := d.publisher.PublishAlert(ctx, rec); err != nil {
			d.metrics.PublishErrors.Inc()
			log.Warn("publish alert failed", "error", err)
		}
	}

	d.metrics.AlertsDispatched.WithLabelValues(strconv.FormatBool(sent)).Inc()
	log.Info("alert dispatched",
		"return_period", alert.ReturnPeriod,
		"severity", alert.Severity,
		"forecast_time", alert.ForecastDateTime,
		"sent", sent,
	)
	return sent
}

func (d *Dispatcher) send(ctx context.Context, alert domain.Alert, log *slog.Logger) bool {
	token, found, err := d.tokens.GetPushToken(ctx, alert.UserID)
	if err != nil {
		log.Warn("push token lookup failed", "error", err)
		return false
	}
	if !found || token.Token == "" {
		log.Info("no push token for user")
		return false
	}

	sent, err := d.notifier.Send(ctx, domain.NewNotification(token.Token, alert, d.clock.Now()))
	if err != nil {
		log.Warn("notifier rejected alert", "error", err)
		return false
	}
	return sent
}
