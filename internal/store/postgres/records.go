package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
)

// ListEnabledPreferences returns every preference record with enabled set.
func (s *Store) ListEnabledPreferences(ctx context.Context) ([]domain.NotificationPreferences, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM notification_preferences WHERE enabled ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var out []domain.NotificationPreferences
	for rows.Next() {
		var p domain.NotificationPreferences
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan preferences: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPreferences(ctx context.Context, userID string) (domain.NotificationPreferences, bool, error) {
	var p domain.NotificationPreferences
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM notification_preferences WHERE user_id = $1`, userID).Scan(&p)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotificationPreferences{}, false, nil
	}
	if err != nil {
		return domain.NotificationPreferences{}, false, fmt.Errorf("query preferences for %s: %w", userID, err)
	}
	return p, true, nil
}

func (s *Store) PutPreferences(ctx context.Context, p domain.NotificationPreferences) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_preferences (user_id, enabled, payload, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.Enabled, p)
	if err != nil {
		return fmt.Errorf("upsert preferences for %s: %w", p.UserID, err)
	}
	return nil
}

func (s *Store) GetPushToken(ctx context.Context, userID string) (domain.PushToken, bool, error) {
	var tok domain.PushToken
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, token, updated_at FROM push_tokens WHERE user_id = $1`, userID).
		Scan(&tok.UserID, &tok.Token, &tok.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PushToken{}, false, nil
	}
	if err != nil {
		return domain.PushToken{}, false, fmt.Errorf("query push token for %s: %w", userID, err)
	}
	return tok, true, nil
}

func (s *Store) PutPushToken(ctx context.Context, tok domain.PushToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO push_tokens (user_id, token, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET token = EXCLUDED.token, updated_at = EXCLUDED.updated_at`,
		tok.UserID, tok.Token, tok.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert push token for %s: %w", tok.UserID, err)
	}
	return nil
}

func (s *Store) GetThresholdRecord(ctx context.Context, riverID string) (domain.ThresholdRecord, bool, error) {
	rec := domain.ThresholdRecord{RiverID: riverID}
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload, last_updated FROM threshold_cache WHERE river_id = $1`, riverID).
		Scan(&payload, &rec.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ThresholdRecord{}, false, nil
	}
	if err != nil {
		return domain.ThresholdRecord{}, false, fmt.Errorf("query thresholds for %s: %w", riverID, err)
	}
	rec.Payload = json.RawMessage(payload)
	return rec, true, nil
}

func (s *Store) PutThresholdRecord(ctx context.Context, rec domain.ThresholdRecord) error {
	if !json.Valid(rec.Payload) {
		return fmt.Errorf("threshold payload for %s is not valid JSON", rec.RiverID)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO threshold_cache (river_id, payload, last_updated) VALUES ($1, $2, $3)
		ON CONFLICT (river_id) DO UPDATE SET payload = EXCLUDED.payload, last_updated = EXCLUDED.last_updated`,
		rec.RiverID, []byte(rec.Payload), rec.LastUpdated)
	if err != nil {
		return fmt.Errorf("upsert thresholds for %s: %w", rec.RiverID, err)
	}
	return nil
}

func (s *Store) GetForecastRecord(ctx context.Context, riverID string) (domain.ForecastRecord, bool, error) {
	rec := domain.ForecastRecord{RiverID: riverID}
	err := s.pool.QueryRow(ctx,
		`SELECT external_id, short_range, medium_range, last_updated FROM forecast_cache WHERE river_id = $1`, riverID).
		Scan(&rec.ExternalID, &rec.ShortRangeForecasts, &rec.MediumRangeForecasts, &rec.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ForecastRecord{}, false, nil
	}
	if err != nil {
		return domain.ForecastRecord{}, false, fmt.Errorf("query forecast for %s: %w", riverID, err)
	}
	return rec, true, nil
}

// PutForecastRecord overwrites the river's cache entry; the last writer wins.
func (s *Store) PutForecastRecord(ctx context.Context, rec domain.ForecastRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO forecast_cache (river_id, external_id, short_range, medium_range, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (river_id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			short_range = EXCLUDED.short_range,
			medium_range = EXCLUDED.medium_range,
			last_updated = EXCLUDED.last_updated`,
		rec.RiverID, rec.ExternalID, nonNil(rec.ShortRangeForecasts), nonNil(rec.MediumRangeForecasts), rec.LastUpdated)
	if err != nil {
		return fmt.Errorf("upsert forecast for %s: %w", rec.RiverID, err)
	}
	return nil
}

func (s *Store) GetRiverMapping(ctx context.Context, riverID string) (domain.RiverMapping, bool, error) {
	m := domain.RiverMapping{RiverID: riverID}
	err := s.pool.QueryRow(ctx,
		`SELECT external_id, name FROM river_mappings WHERE river_id = $1`, riverID).
		Scan(&m.ExternalID, &m.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RiverMapping{}, false, nil
	}
	if err != nil {
		return domain.RiverMapping{}, false, fmt.Errorf("query river mapping for %s: %w", riverID, err)
	}
	return m, true, nil
}

// PutRiverMapping upserts a mapping. Empty fields do not overwrite known values.
func (s *Store) PutRiverMapping(ctx context.Context, m domain.RiverMapping) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO river_mappings (river_id, external_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (river_id) DO UPDATE SET
			external_id = COALESCE(NULLIF(EXCLUDED.external_id, ''), river_mappings.external_id),
			name = COALESCE(NULLIF(EXCLUDED.name, ''), river_mappings.name)`,
		m.RiverID, m.ExternalID, m.Name)
	if err != nil {
		return fmt.Errorf("upsert river mapping for %s: %w", m.RiverID, err)
	}
	return nil
}

func (s *Store) GetStation(ctx context.Context, id string) (domain.Station, bool, error) {
	st := domain.Station{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT name, reach_id FROM stations WHERE id = $1`, id).
		Scan(&st.Name, &st.ReachID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Station{}, false, nil
	}
	if err != nil {
		return domain.Station{}, false, fmt.Errorf("query station %s: %w", id, err)
	}
	return st, true, nil
}

// PutStation upserts a station. Empty fields do not overwrite known values.
func (s *Store) PutStation(ctx context.Context, st domain.Station) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stations (id, name, reach_id) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), stations.name),
			reach_id = COALESCE(NULLIF(EXCLUDED.reach_id, ''), stations.reach_id)`,
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
