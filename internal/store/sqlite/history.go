package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
)

// HasRecentAlert reports whether an alert for the triple was triggered at or after since.
func (s *Store) HasRecentAlert(ctx context.Context, userID, riverID string, returnPeriod int, since time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alert_history
			WHERE user_id = ? AND river_id = ? AND return_period = ? AND alert_triggered_at >= ?
		)`,
		userID, riverID, returnPeriod, formatTime(since)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query alert history: %w", err)
	}
	return exists, nil
}

// UpsertAlert records an alert outcome. A repeated (user, alert id) updates
// its row in place: alert_triggered_at and the payload move to the later
// trigger, sent only ever turns true and the first sent_at is kept.
func (s *Store) UpsertAlert(ctx context.Context, rec domain.AlertRecord) error {
	payload, err := json.Marshal(rec.Alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	var sentAt sql.NullString
	if rec.SentAt != nil {
		sentAt = sql.NullString{String: formatTime(*rec.SentAt), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_history
			(user_id, alert_id, river_id, return_period, alert_triggered_at, sent, sent_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, alert_id) DO UPDATE SET
			payload = CASE WHEN excluded.alert_triggered_at > alert_history.alert_triggered_at
				THEN excluded.payload ELSE alert_history.payload END,
			alert_triggered_at = MAX(alert_history.alert_triggered_at, excluded.alert_triggered_at),
			sent = MAX(alert_history.sent, excluded.sent),
			sent_at = COALESCE(alert_history.sent_at, excluded.sent_at)`,
		rec.UserID, rec.AlertID, rec.RiverID, rec.ReturnPeriod,
		formatTime(rec.AlertTriggeredAt), rec.Sent, sentAt, string(payload))
	if err != nil {
		return fmt.Errorf("upsert alert %s: %w", rec.AlertID, err)
	}
	return nil
}

// ListAlerts returns a user's most recent alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, userID string, limit int) ([]domain.AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload, sent, sent_at FROM alert_history
		WHERE user_id = ?
		ORDER BY alert_triggered_at DESC, alert_id
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts for %s: %w", userID, err)
	}
	defer rows.Close()

	out := []domain.AlertRecord{}
	for rows.Next() {
		var (
			payload string
			rec     domain.AlertRecord
			sentAt  sql.NullString
		)
		if err := rows.Scan(&payload, &rec.Sent, &sentAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &rec.Alert); err != nil {
			return nil, fmt.Errorf("decode alert: %w", err)
		}
		if sentAt.Valid {
			t, err := parseTime(sentAt.String)
			if err != nil {
				return nil, err
			}
			rec.SentAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
