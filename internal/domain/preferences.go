package domain

import "time"

// NotificationPreferences is a user's alerting configuration. The engine
// only reads it.
type NotificationPreferences struct {
	UserID             string   `json:"userId"`
	Enabled            bool     `json:"enabled"`
	MonitoredRiverIDs  []string `json:"monitoredRiverIds"`
	IncludeShortRange  bool     `json:"includeShortRange"`
	IncludeMediumRange bool     `json:"includeMediumRange"`
	QuietHoursEnabled  bool     `json:"quietHoursEnabled"`
	QuietHourStart     int      `json:"quietHourStart"`
	QuietMinuteStart   int      `json:"quietMinuteStart"`
	QuietHourEnd       int      `json:"quietHourEnd"`
	QuietMinuteEnd     int      `json:"quietMinuteEnd"`
	// Timezone is an optional IANA zone name used to read the local hour.
	Timezone string `json:"timezone,omitempty"`
}

// Active reports whether the user has alerting turned on and at least one
// monitored river.
func (p NotificationPreferences) Active() bool {
	return p.Enabled && len(p.MonitoredRiverIDs) > 0
}

// Ranges returns the forecast ranges the user wants alerts for.
func (p NotificationPreferences) Ranges() []ForecastRange {
	var out []ForecastRange
	if p.IncludeShortRange {
		out = append(out, RangeShort)
	}
	if p.IncludeMediumRange {
		out = append(out, RangeMedium)
	}
	return out
}

// LocalTime returns t in the user's timezone, or t unchanged when the zone is
// unset or unknown.
func (p NotificationPreferences) LocalTime(t time.Time) time.Time {
	if p.Timezone == "" {
		return t
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return t
	}
	return t.In(loc)
}
