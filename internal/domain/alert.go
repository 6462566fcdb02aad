package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Alert is a forecast point that reached a return-period threshold for a
// user's monitored river.
type Alert struct {
	AlertID          string        `json:"alertId"`
	UserID           string        `json:"userId"`
	RiverID          string        `json:"riverId"`
	RiverName        string        `json:"riverName"`
	ForecastedFlow   float64       `json:"forecastedFlow"`
	FlowUnit         FlowUnit      `json:"flowUnit"`
	ReturnPeriod     int           `json:"returnPeriod"`
	ReturnPeriodFlow float64       `json:"returnPeriodFlow"`
	ForecastRange    ForecastRange `json:"forecastRange"`
	ForecastDateTime time.Time     `json:"forecastDateTime"`
	AlertTriggeredAt time.Time     `json:"alertTriggeredAt"`
	Severity         Severity      `json:"severity"`
	// Timezone is the zone the notification's relative date is rendered in.
	Timezone string `json:"timezone,omitempty"`
}

// AlertRecord is an alert as written to history, with its delivery outcome.
type AlertRecord struct {
	Alert
	Sent   bool       `json:"sent"`
	SentAt *time.Time `json:"sentAt"`
}

// AlertID derives the deterministic alert identifier. The same river, return
// period and forecast time always produce the same ID.
func AlertID(riverID string, returnPeriod int, forecastTime time.Time) string {
	input := fmt.Sprintf("%s|%d|%s", riverID, returnPeriod, forecastTime.UTC().Format(time.RFC3339))
	hash := sha256.Sum256([]byte(input))
	return "flow-" + hex.EncodeToString(hash[:8])
}

// NewAlert builds the alert for a matched forecast point.
func NewAlert(prefs NotificationPreferences, river RiverRef, point ForecastPoint, m Match, triggeredAt time.Time) Alert {
	return Alert{
		AlertID:          AlertID(river.RiverID, m.ReturnPeriod, point.ValidTime),
		UserID:           prefs.UserID,
		RiverID:          river.RiverID,
		RiverName:        river.DisplayName(),
		ForecastedFlow:   point.Flow,
		FlowUnit:         point.Unit,
		ReturnPeriod:     m.ReturnPeriod,
		ReturnPeriodFlow: m.ThresholdFlow,
		ForecastRange:    point.Range,
		ForecastDateTime: point.ValidTime,
		AlertTriggeredAt: triggeredAt,
		Severity:         m.Severity,
		Timezone:         prefs.Timezone,
	}
}
