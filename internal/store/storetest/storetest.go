// Package storetest is a conformance suite run against every store backend.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
)

// Store is the full surface a backend provides.
type Store interface {
	ListEnabledPreferences(ctx context.Context) ([]domain.NotificationPreferences, error)
	GetPreferences(ctx context.Context, userID string) (domain.NotificationPreferences, bool, error)
	PutPreferences(ctx context.Context, p domain.NotificationPreferences) error
	GetPushToken(ctx context.Context, userID string) (domain.PushToken, bool, error)
	PutPushToken(ctx context.Context, tok domain.PushToken) error
	GetThresholdRecord(ctx context.Context, riverID string) (domain.ThresholdRecord, bool, error)
	PutThresholdRecord(ctx context.Context, rec domain.ThresholdRecord) error
	GetForecastRecord(ctx context.Context, riverID string) (domain.ForecastRecord, bool, error)
	PutForecastRecord(ctx context.Context, rec domain.ForecastRecord) error
	GetRiverMapping(ctx context.Context, riverID string) (domain.RiverMapping, bool, error)
	PutRiverMapping(ctx context.Context, m domain.RiverMapping) error
	GetStation(ctx context.Context, id string) (domain.Station, bool, error)
	PutStation(ctx context.Context, st domain.Station) error
	HasRecentAlert(ctx context.Context, userID, riverID string, returnPeriod int, since time.Time) (bool, error)
	UpsertAlert(ctx context.Context, rec domain.AlertRecord) error
	ListAlerts(ctx context.Context, userID string, limit int) ([]domain.AlertRecord, error)
}

var base = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

// Run exercises newStore's backend. Each subtest gets a fresh, migrated store.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("Preferences", func(t *testing.T) { testPreferences(t, newStore(t)) })
	t.Run("PushTokens", func(t *testing.T) { testPushTokens(t, newStore(t)) })
	t.Run("Thresholds", func(t *testing.T) { testThresholds(t, newStore(t)) })
	t.Run("Forecasts", func(t *testing.T) { testForecasts(t, newStore(t)) })
	t.Run("Rivers", func(t *testing.T) { testRivers(t, newStore(t)) })
	t.Run("AlertUpsertMerges", func(t *testing.T) { testAlertUpsert(t, newStore(t)) })
	t.Run("RecentAlertWindow", func(t *testing.T) { testRecentAlert(t, newStore(t)) })
	t.Run("RedispatchRestartsWindow", func(t *testing.T) { testRedispatchWindow(t, newStore(t)) })
	t.Run("ListAlerts", func(t *testing.T) { testListAlerts(t, newStore(t)) })
}

func testPreferences(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.GetPreferences(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	on := domain.NotificationPreferences{
		UserID:            "u2",
		Enabled:           true,
		MonitoredRiverIDs: []string{"R1", "R2"},
		IncludeShortRange: true,
		QuietHoursEnabled: true,
		QuietHourStart:    22,
		QuietHourEnd:      7,
		Timezone:          "America/Denver",
	}
	off := domain.NotificationPreferences{UserID: "u1", MonitoredRiverIDs: []string{"R1"}}
	require.NoError(t, s.PutPreferences(ctx, on))
	require.NoError(t, s.PutPreferences(ctx, off))
	require.NoError(t, s.PutPreferences(ctx, domain.NotificationPreferences{UserID: "u3", Enabled: true}))

	got, ok, err := s.GetPreferences(ctx, "u2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, on, got)

	enabled, err := s.ListEnabledPreferences(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, "u2", enabled[0].UserID)
	assert.Equal(t, "u3", enabled[1].UserID)

	off.Enabled = true
	require.NoError(t, s.PutPreferences(ctx, off))
	enabled, err = s.ListEnabledPreferences(ctx)
	require.NoError(t, err)
	assert.Len(t, enabled, 3)
}

func testPushTokens(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.GetPushToken(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutPushToken(ctx, domain.PushToken{UserID: "u1", Token: "old", UpdatedAt: base}))
	require.NoError(t, s.PutPushToken(ctx, domain.PushToken{UserID: "u1", Token: "ExponentPushToken[abc]", UpdatedAt: base.Add(time.Hour)}))

	tok, ok, err := s.GetPushToken(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ExponentPushToken[abc]", tok.Token)
	assert.True(t, tok.UpdatedAt.Equal(base.Add(time.Hour)))
}

func testThresholds(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.GetThresholdRecord(ctx, "R1")
	require.NoError(t, err)
	assert.False(t, ok)

	payload := json.RawMessage(`{"return_period_2":1000,"return_period_10":4000,"unit":"cfs"}`)
	require.NoError(t, s.PutThresholdRecord(ctx, domain.ThresholdRecord{RiverID: "R1", Payload: payload, LastUpdated: base}))

	rec, ok, err := s.GetThresholdRecord(ctx, "R1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(payload), string(rec.Payload))
	assert.True(t, rec.LastUpdated.Equal(base))

	assert.Error(t, s.PutThresholdRecord(ctx, domain.ThresholdRecord{RiverID: "R2", Payload: json.RawMessage(`{`), LastUpdated: base}))
}

func testForecasts(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.GetForecastRecord(ctx, "R1")
	require.NoError(t, err)
	assert.False(t, ok)

	rec := domain.ForecastRecord{
		RiverID:    "R1",
		ExternalID: "23021904",
		ShortRangeForecasts: []domain.ForecastPoint{
			{Flow: 4500, Unit: domain.UnitCFS, ValidTime: base.Add(time.Hour), Range: domain.RangeShort},
		},
		LastUpdated: base,
	}
	require.NoError(t, s.PutForecastRecord(ctx, rec))

	got, ok, err := s.GetForecastRecord(ctx, "R1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "23021904", got.ExternalID)
	require.Len(t, got.ShortRangeForecasts, 1)
	assert.InDelta(t, 4500, got.ShortRangeForecasts[0].Flow, 1e-9)
	assert.True(t, got.ShortRangeForecasts[0].ValidTime.Equal(base.Add(time.Hour)))
	assert.Empty(t, got.MediumRangeForecasts)
	assert.True(t, got.LastUpdated.Equal(base))

	rec.ShortRangeForecasts = nil
	rec.LastUpdated = base.Add(time.Hour)
	require.NoError(t, s.PutForecastRecord(ctx, rec))
	got, _, err = s.GetForecastRecord(ctx, "R1")
	require.NoError(t, err)
	assert.Empty(t, got.ShortRangeForecasts)
	assert.True(t, got.LastUpdated.Equal(base.Add(time.Hour)))
}

func testRivers(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.GetRiverMapping(ctx, "R1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutRiverMapping(ctx, domain.RiverMapping{RiverID: "R1", ExternalID: "23021904", Name: "Snake River"}))
	m, ok, err := s.GetRiverMapping(ctx, "R1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.RiverMapping{RiverID: "R1", ExternalID: "23021904", Name: "Snake River"}, m)

	// A name-only update keeps the known external id.
	require.NoError(t, s.PutRiverMapping(ctx, domain.RiverMapping{RiverID: "R1", Name: "Snake River at Moose"}))
	m, _, err = s.GetRiverMapping(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, domain.RiverMapping{RiverID: "R1", ExternalID: "23021904", Name: "Snake River at Moose"}, m)

	require.NoError(t, s.PutStation(ctx, domain.Station{ID: "S1", Name: "Gauge at Moose", ReachID: "23021904"}))
	st, ok, err := s.GetStation(ctx, "S1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "23021904", st.ReachID)

	_, ok, err = s.GetStation(ctx, "S2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func alertAt(userID, riverID string, rp int, triggered time.Time) domain.Alert {
	forecastAt := triggered.Add(24 * time.Hour)
	return domain.Alert{
		AlertID:          domain.AlertID(riverID, rp, forecastAt),
		UserID:           userID,
		RiverID:          riverID,
		RiverName:        "Snake River",
		ForecastedFlow:   4500,
		FlowUnit:         domain.UnitCFS,
		ReturnPeriod:     rp,
		ReturnPeriodFlow: 4000,
		ForecastRange:    domain.RangeShort,
		ForecastDateTime: forecastAt,
		AlertTriggeredAt: triggered,
		Severity:         domain.SeverityFor(rp),
	}
}

func testAlertUpsert(t *testing.T, s Store) {
	ctx := context.Background()
	a := alertAt("u1", "R1", 10, base)

	sentAt := base.Add(time.Minute)
	require.NoError(t, s.UpsertAlert(ctx, domain.AlertRecord{Alert: a, Sent: true, SentAt: &sentAt}))

	// A later failed attempt for the same alert neither clears sent nor moves sent_at.
	retry := a
	retry.AlertTriggeredAt = base.Add(time.Hour)
	require.NoError(t, s.UpsertAlert(ctx, domain.AlertRecord{Alert: retry}))
	later := base.Add(2 * time.Hour)
	require.NoError(t, s.UpsertAlert(ctx, domain.AlertRecord{Alert: retry, Sent: true, SentAt: &later}))

	got, err := s.ListAlerts(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Sent)
	require.NotNil(t, got[0].SentAt)
	assert.True(t, got[0].SentAt.Equal(sentAt))
	assert.True(t, got[0].AlertTriggeredAt.Equal(base.Add(time.Hour)), "trigger time moves to the latest dispatch")

	// An older trigger arriving late does not move the row back.
	require.NoError(t, s.UpsertAlert(ctx, domain.AlertRecord{Alert: a}))
	got, err = s.ListAlerts(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].AlertTriggeredAt.Equal(base.Add(time.Hour)))

	// Unsent first, sent later: sent turns true.
	b := alertAt("u1", "R1", 25, base)
	require.NoError(t, s.UpsertAlert(ctx, domain.AlertRecord{Alert: b}))
	require.NoError(t, s.UpsertAlert(ctx, domain.AlertRecord{Alert: b, Sent: true, SentAt: &later}))
	got, err = s.ListAlerts(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, rec := range got {
		assert.True(t, rec.Sent, rec.AlertID)
	}
}

func testRecentAlert(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertAlert(ctx, domain.AlertRecord{Alert: alertAt("u1", "R1", 10, base)}))

	tests := []struct {
		name   string
		user   string
		river  string
		rp     int
		since  time.Time
		expect bool
	}{
		{"inside window", "u1", "R1", 10, base.Add(-24 * time.Hour), true},
		{"boundary inclusive", "u1", "R1", 10, base, true},
		{"outside window", "u1", "R1", 10, base.Add(time.Millisecond), false},
		{"other return period", "u1", "R1", 25, base.Add(-time.Hour), false},
		{"other river", "u1", "R2", 10, base.Add(-time.Hour), false},
		{"other user", "u2", "R1", 10, base.Add(-time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.HasRecentAlert(ctx, tt.user, tt.river, tt.rp, tt.since)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}
}

// The same alert id dispatched again after its window keeps deduplicating
// for a full window from the new dispatch.
func testRedispatchWindow(t *testing.T, s Store) {
	ctx := context.Background()
	first := alertAt("u1", "R1", 10, base)
	require.NoError(t, s.UpsertAlert(ctx, domain.AlertRecord{Alert: first, Sent: true, SentAt: &base}))

	again := first
	again.AlertTriggeredAt = base.Add(25 * time.Hour)
	require.NoError(t, s.UpsertAlert(ctx, domain.AlertRecord{Alert: again, Sent: true, SentAt: &again.AlertTriggeredAt}))

	for _, elapsed := range []time.Duration{30 * time.Minute, 2 * time.Hour, 23 * time.Hour} {
		now := again.AlertTriggeredAt.Add(elapsed)
		recent, err := s.HasRecentAlert(ctx, "u1", "R1", 10, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.True(t, recent, "%s after re-dispatch", elapsed)
	}

	got, err := s.ListAlerts(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].AlertTriggeredAt.Equal(again.AlertTriggeredAt))
}

func testListAlerts(t *testing.T, s Store) {
	ctx := context.Background()
	for i, rp := range []int{2, 5, 10} {
		require.NoError(t, s.UpsertAlert(ctx, domain.AlertRecord{Alert: alertAt("u1", "R1", rp, base.Add(time.Duration(i)*time.Hour))}))
	}
	require.NoError(t, s.UpsertAlert(ctx, domain.AlertRecord{Alert: alertAt("u2", "R1", 50, base)}))

	got, err := s.ListAlerts(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 10, got[0].ReturnPeriod)
	assert.Equal(t, 5, got[1].ReturnPeriod)
	assert.Nil(t, got[0].SentAt)

	none, err := s.ListAlerts(ctx, "u3", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
