package domain

import (
	"encoding/json"
	"time"
)

// ThresholdRecord is a persisted threshold cache entry. Payload holds the
// record exactly as it was stored, in whichever historical shape it arrived.
type ThresholdRecord struct {
	RiverID     string          `json:"riverId"`
	Payload     json.RawMessage `json:"payload"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// ForecastRecord is a persisted forecast cache entry.
type ForecastRecord struct {
	RiverID              string          `json:"riverId"`
	ExternalID           string          `json:"externalId"`
	ShortRangeForecasts  []ForecastPoint `json:"shortRangeForecasts"`
	MediumRangeForecasts []ForecastPoint `json:"mediumRangeForecasts"`
	LastUpdated          time.Time       `json:"lastUpdated"`
}

// PushToken is a user's delivery address for the notifier.
type PushToken struct {
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updatedAt"`
}
