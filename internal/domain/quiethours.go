package domain

import "time"

// IsSuppressed reports whether alerting is currently inside the user's quiet
// hours. Only the hour of now is compared.
func IsSuppressed(prefs NotificationPreferences, now time.Time) bool {
	if !prefs.QuietHoursEnabled {
		return false
	}
	hour := prefs.LocalTime(now).Hour()
	start, end := prefs.QuietHourStart, prefs.QuietHourEnd
	if start > end {
		return hour >= start || hour < end
	}
	return hour >= start && hour < end
}
