package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
)

func (s *Store) HasRecentAlert(ctx context.Context, userID, riverID string, returnPeriod int, since time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alert_history
			WHERE user_id = $1 AND river_id = $2 AND return_period = $3 AND alert_triggered_at >= $4
		)`,
		userID, riverID, returnPeriod, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query alert history: %w", err)
	}
	return exists, nil
}

// UpsertAlert records an alert outcome. A repeated (user, alert id) updates
// its row in place: alert_triggered_at and the payload move to the later
// trigger, sent only ever turns true and the first sent_at is kept.
func (s *Store) UpsertAlert(ctx context.Context, rec domain.AlertRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_history
			(user_id, alert_id, river_id, return_period, alert_triggered_at, sent, sent_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, alert_id) DO UPDATE SET
			payload = CASE WHEN EXCLUDED.alert_triggered_at > alert_history.alert_triggered_at
				THEN EXCLUDED.payload ELSE alert_history.payload END,
			alert_triggered_at = GREATEST(alert_history.alert_triggered_at, EXCLUDED.alert_triggered_at),
			sent = alert_history.sent OR EXCLUDED.sent,
			sent_at = COALESCE(alert_history.sent_at, EXCLUDED.sent_at)`,
		rec.UserID, rec.AlertID, rec.RiverID, rec.ReturnPeriod,
		rec.AlertTriggeredAt, rec.Sent, rec.SentAt, rec.Alert)
	if err != nil {
		return fmt.Errorf("upsert alert %s: %w", rec.AlertID, err)
	}
	return nil
}

// ListAlerts returns a user's most recent alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, userID string, limit int) ([]domain.AlertRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT payload, sent, sent_at FROM alert_history
		WHERE user_id = $1
		ORDER BY alert_triggered_at DESC, alert_id
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts for %s: %w", userID, err)
	}
	defer rows.Close()

	out := []domain.AlertRecord{}
	for rows.Next() {
		var rec domain.AlertRecord
		if err := rows.Scan(&rec.Alert, &rec.Sent, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
