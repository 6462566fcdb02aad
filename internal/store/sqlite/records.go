package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
)

// ListEnabledPreferences returns every preference record with enabled set.
func (s *Store) ListEnabledPreferences(ctx context.Context) ([]domain.NotificationPreferences, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM notification_preferences WHERE enabled = 1 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var out []domain.NotificationPreferences
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan preferences: %w", err)
		}
		var p domain.NotificationPreferences
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPreferences(ctx context.Context, userID string) (domain.NotificationPreferences, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM notification_preferences WHERE user_id = ?`, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotificationPreferences{}, false, nil
	}
	if err != nil {
		return domain.NotificationPreferences{}, false, fmt.Errorf("query preferences for %s: %w", userID, err)
	}
	var p domain.NotificationPreferences
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return domain.NotificationPreferences{}, false, fmt.Errorf("decode preferences for %s: %w", userID, err)
	}
	return p, true, nil
}

func (s *Store) PutPreferences(ctx context.Context, p domain.NotificationPreferences) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_preferences (user_id, enabled, payload, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(user_id) DO UPDATE SET
			enabled = excluded.enabled,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		p.UserID, p.Enabled, string(payload))
	if err != nil {
		return fmt.Errorf("upsert preferences for %s: %w", p.UserID, err)
	}
	return nil
}

func (s *Store) GetPushToken(ctx context.Context, userID string) (domain.PushToken, bool, error) {
	var (
		tok       domain.PushToken
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, token, updated_at FROM push_tokens WHERE user_id = ?`, userID).
		Scan(&tok.UserID, &tok.Token, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PushToken{}, false, nil
	}
	if err != nil {
		return domain.PushToken{}, false, fmt.Errorf("query push token for %s: %w", userID, err)
	}
	if tok.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.PushToken{}, false, err
	}
	return tok, true, nil
}

func (s *Store) PutPushToken(ctx context.Context, tok domain.PushToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_tokens (user_id, token, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		tok.UserID, tok.Token, formatTime(tok.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert push token for %s: %w", tok.UserID, err)
	}
	return nil
}

func (s *Store) GetThresholdRecord(ctx context.Context, riverID string) (domain.ThresholdRecord, bool, error) {
	var payload, lastUpdated string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, last_updated FROM threshold_cache WHERE river_id = ?`, riverID).
		Scan(&payload, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ThresholdRecord{}, false, nil
	}
	if err != nil {
		return domain.ThresholdRecord{}, false, fmt.Errorf("query thresholds for %s: %w", riverID, err)
	}
	t, err := parseTime(lastUpdated)
	if err != nil {
		return domain.ThresholdRecord{}, false, err
	}
	return domain.ThresholdRecord{RiverID: riverID, Payload: json.RawMessage(payload), LastUpdated: t}, true, nil
}

func (s *Store) PutThresholdRecord(ctx context.Context, rec domain.ThresholdRecord) error {
	if !json.Valid(rec.Payload) {
		return fmt.Errorf("threshold payload for %s is not valid JSON", rec.RiverID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threshold_cache (river_id, payload, last_updated) VALUES (?, ?, ?)
		ON CONFLICT(river_id) DO UPDATE SET payload = excluded.payload, last_updated = excluded.last_updated`,
		rec.RiverID, string(rec.Payload), formatTime(rec.LastUpdated))
	if err != nil {
		return fmt.Errorf("upsert thresholds for %s: %w", rec.RiverID, err)
	}
	return nil
}

func (s *Store) GetForecastRecord(ctx context.Context, riverID string) (domain.ForecastRecord, bool, error) {
	rec := domain.ForecastRecord{RiverID: riverID}
	var short, medium, lastUpdated string
	err := s.db.QueryRowContext(ctx,
		`SELECT external_id, short_range, medium_range, last_updated FROM forecast_cache WHERE river_id = ?`, riverID).
		Scan(&rec.ExternalID, &short, &medium, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ForecastRecord{}, false, nil
	}
	if err != nil {
		return domain.ForecastRecord{}, false, fmt.Errorf("query forecast for %s: %w", riverID, err)
	}
	if err := json.Unmarshal([]byte(short), &rec.ShortRangeForecasts); err != nil {
		return domain.ForecastRecord{}, false, fmt.Errorf("decode short range for %s: %w", riverID, err)
	}
	if err := json.Unmarshal([]byte(medium), &rec.MediumRangeForecasts); err != nil {
		return domain.ForecastRecord{}, false, fmt.Errorf("decode medium range for %s: %w", riverID, err)
	}
	if rec.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return domain.ForecastRecord{}, false, err
	}
	return rec, true, nil
}

// PutForecastRecord overwrites the river's cache entry; the last writer wins.
func (s *Store) PutForecastRecord(ctx context.Context, rec domain.ForecastRecord) error {
	short, err := json.Marshal(nonNil(rec.ShortRangeForecasts))
	if err != nil {
		return fmt.Errorf("encode short range: %w", err)
	}
	medium, err := json.Marshal(nonNil(rec.MediumRangeForecasts))
	if err != nil {
		return fmt.Errorf("encode medium range: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forecast_cache (river_id, external_id, short_range, medium_range, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(river_id) DO UPDATE SET
			external_id = excluded.external_id,
			short_range = excluded.short_range,
			medium_range = excluded.medium_range,
			last_updated = excluded.last_updated`,
		rec.RiverID, rec.ExternalID, string(short), string(medium), formatTime(rec.LastUpdated))
	if err != nil {
		return fmt.Errorf("upsert forecast for %s: %w", rec.RiverID, err)
	}
	return nil
}

func (s *Store) GetRiverMapping(ctx context.Context, riverID string) (domain.RiverMapping, bool, error) {
	m := domain.RiverMapping{RiverID: riverID}
	err := s.db.QueryRowContext(ctx,
		`SELECT external_id, name FROM river_mappings WHERE river_id = ?`, riverID).
		Scan(&m.ExternalID, &m.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RiverMapping{}, false, nil
	}
	if err != nil {
		return domain.RiverMapping{}, false, fmt.Errorf("query river mapping for %s: %w", riverID, err)
	}
	return m, true, nil
}

// PutRiverMapping upserts a mapping. Empty fields do not overwrite known values.
func (s *Store) PutRiverMapping(ctx context.Context, m domain.RiverMapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO river_mappings (river_id, external_id, name) VALUES (?, ?, ?)
		ON CONFLICT(river_id) DO UPDATE SET
			external_id = COALESCE(NULLIF(excluded.external_id, ''), river_mappings.external_id),
			name = COALESCE(NULLIF(excluded.name, ''), river_mappings.name)`,
		m.RiverID, m.ExternalID, m.Name)
	if err != nil {
		return fmt.Errorf("upsert river mapping for %s: %w", m.RiverID, err)
	}
	return nil
}

func (s *Store) GetStation(ctx context.Context, id string) (domain.Station, bool, error) {
	st := domain.Station{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, reach_id FROM stations WHERE id = ?`, id).
		Scan(&st.Name, &st.ReachID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Station{}, false, nil
	}
	if err != nil {
		return domain.Station{}, false, fmt.Errorf("query station %s: %w", id, err)
	}
	return st, true, nil
}

// PutStation upserts a station. Empty fields do not overwrite known values.
func (s *Store) PutStation(ctx context.Context, st domain.Station) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stations (id, name, reach_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = COALESCE(NULLIF(excluded.name, ''), stations.name),
			reach_id = COALESCE(NULLIF(excluded.reach_id, ''), stations.reach_id)`,
		st.ID, st.Name, st.ReachID)
	if err != nil {
		return fmt.Errorf("upsert station %s: %w", st.ID, err)
	}
	return nil
}

func nonNil(points []domain.ForecastPoint) []domain.ForecastPoint {
	if points == nil {
		return []domain.ForecastPoint{}
	}
	return points
}
