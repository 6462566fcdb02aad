package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var saturday = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

func TestAlertID_Deterministic(t *testing.T) {
	ft := time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)

	a := AlertID("R1", 10, ft)
	b := AlertID("R1", 10, ft.In(time.FixedZone("MDT", -6*3600)))
	assert.Equal(t, a, b, "same instant in another zone must collide")
	assert.Regexp(t, `^flow-[0-9a-f]{16}$`, a)

	assert.NotEqual(t, a, AlertID("R1", 25, ft))
	assert.NotEqual(t, a, AlertID("R2", 10, ft))
	assert.NotEqual(t, a, AlertID("R1", 10, ft.Add(time.Hour)))
}

func TestNewAlert(t *testing.T) {
	prefs := NotificationPreferences{UserID: "u1", Timezone: "America/Boise"}
	river := RiverRef{RiverID: "R1", ExternalID: "23021904", Name: "Snake River"}
	point := ForecastPoint{Flow: 4500, Unit: UnitCFS, ValidTime: saturday.Add(24 * time.Hour), Range: RangeShort}
	m, ok := MatchFlow(point, r1Table())
	require.True(t, ok)

	alert := NewAlert(prefs, river, point, m, saturday)

	assert.Equal(t, AlertID("R1", 10, point.ValidTime), alert.AlertID)
	assert.Equal(t, "u1", alert.UserID)
	assert.Equal(t, "R1", alert.RiverID)
	assert.Equal(t, "Snake River", alert.RiverName)
	assert.Equal(t, 4500.0, alert.ForecastedFlow)
	assert.Equal(t, UnitCFS, alert.FlowUnit)
	assert.Equal(t, 10, alert.ReturnPeriod)
	assert.Equal(t, 4000.0, alert.ReturnPeriodFlow)
	assert.Equal(t, RangeShort, alert.ForecastRange)
	assert.Equal(t, point.ValidTime, alert.ForecastDateTime)
	assert.Equal(t, saturday, alert.AlertTriggeredAt)
	assert.Equal(t, SeverityMajor, alert.Severity)
	assert.Equal(t, "America/Boise", alert.Timezone)
}

func TestRiverRef_DisplayName(t *testing.T) {
	assert.Equal(t, "Snake River", RiverRef{RiverID: "R1", Name: "Snake River"}.DisplayName())
	assert.Equal(t, "River R1", RiverRef{RiverID: "R1"}.DisplayName())
}

func TestAlert_TitleAndBody(t *testing.T) {
	alert := Alert{
		RiverName:        "Snake River",
		ForecastedFlow:   4500,
		FlowUnit:         UnitCFS,
		ReturnPeriod:     10,
		ReturnPeriodFlow: 4000,
		ForecastDateTime: saturday.Add(26 * time.Hour),
		Severity:         SeverityMajor,
	}

	assert.Equal(t, "Major Flow Alert: Snake River", alert.Title())
	assert.Equal(t,
		"Tomorrow: forecasted flow of 4,500 CFS, reaching the 10-year return period threshold (4,000 CFS).",
		alert.Body(saturday))
}

func TestRelativeDay(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"later today", time.Date(2026, 10, 17, 23, 0, 0, 0, time.UTC), "Today"},
		{"early tomorrow", time.Date(2026, 10, 18, 1, 0, 0, 0, time.UTC), "Tomorrow"},
		{"two days", time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC), "In 2 days"},
		{"six days", time.Date(2026, 10, 23, 12, 0, 0, 0, time.UTC), "In 6 days"},
		{"beyond a week", time.Date(2026, 10, 25, 12, 0, 0, 0, time.UTC), "Sun, Oct 25"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RelativeDay(tt.t, saturday))
		})
	}
}

func TestRelativeDay_UsesNowLocation(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)

	// 03:00 UTC on the 18th is still the evening of the 17th in Denver.
	forecast := time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "Tomorrow", RelativeDay(forecast, saturday))
	assert.Equal(t, "Today", RelativeDay(forecast, saturday.In(denver)))
}
