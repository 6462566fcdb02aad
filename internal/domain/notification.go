package domain

import "time"

// NotificationType tags the payload so clients can route it.
const NotificationType = "flow_alert"

// Notification is a rendered push message addressed to one delivery token.
type Notification struct {
	Token string           `json:"token"`
	Title string           `json:"title"`
	Body  string           `json:"body"`
	Data  NotificationData `json:"data"`
}

// NotificationData is the opaque payload delivered alongside the message.
type NotificationData struct {
	Type         string   `json:"type"`
	RiverID      string   `json:"riverId"`
	RiverName    string   `json:"riverName"`
	Severity     Severity `json:"severity"`
	ReturnPeriod int      `json:"returnPeriod"`
	AlertID      string   `json:"alertId"`
}

// NewNotification renders an alert for delivery to token at time now.
func NewNotification(token string, a Alert, now time.Time) Notification {
	return Notification{
		Token: token,
		Title: a.Title(),
		Body:  a.Body(now),
		Data: NotificationData{
			Type:         NotificationType,
			RiverID:      a.RiverID,
			RiverName:    a.RiverName,
			Severity:     a.Severity,
			ReturnPeriod: a.ReturnPeriod,
			AlertID:      a.AlertID,
		},
	}
}
