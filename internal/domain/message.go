package domain

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Title renders the notification title, e.g. "Major Flow Alert: Snake River".
func (a Alert) Title() string {
	return printer.Sprintf("%s Flow Alert: %s", capitalize(string(a.Severity)), a.RiverName)
}

// Body renders the notification body relative to now.
func (a Alert) Body(now time.Time) string {
	if a.Timezone != "" {
		if loc, err := time.LoadLocation(a.Timezone); err == nil {
			now = now.In(loc)
		}
	}
	return printer.Sprintf("%s: forecasted flow of %.0f %s, reaching the %d-year return period threshold (%.0f %s).",
		RelativeDay(a.ForecastDateTime, now),
		a.ForecastedFlow, a.FlowUnit,
		a.ReturnPeriod, a.ReturnPeriodFlow, a.FlowUnit,
	)
}

// RelativeDay describes t relative to now's calendar day in now's location:
// "Today", "Tomorrow", "In N days" within a week, otherwise a calendar date.
func RelativeDay(t, now time.Time) string {
	loc := now.Location()
	t = t.In(loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	// Round to absorb 23h/25h days across DST transitions.
	days := int(day.Sub(today).Round(24*time.Hour) / (24 * time.Hour))
	switch {
	case days == 0:
		return "Today"
	case days == 1:
		return "Tomorrow"
	case days > 1 && days < 7:
		return printer.Sprintf("In %d days", days)
	default:
		return t.Format("Mon, Jan 2")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
