// Package fixture loads seed documents into a store and checks them before
// they are written. A fixture file is one JSON object:
//
//	{
//	  "preferences":   [{"userId": "u1", "enabled": true, "monitoredRiverIds": ["R1"], ...}],
//	  "pushTokens":    [{"userId": "u1", "token": "ExponentPushToken[...]"}],
//	  "riverMappings": [{"riverId": "R1", "externalId": "23021904", "name": "Snake River"}],
//	  "stations":      [{"id": "S1", "reachId": "23021904"}],
//	  "thresholds":    [{"riverId": "R1", "payload": {"return_period_2": 1000}}]
//	}
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	z "github.com/Oudwins/zog"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
	"github.com/couchcryptid/flow-alert-service/internal/threshold"
)

// File is a decoded fixture document.
type File struct {
	Preferences   []domain.NotificationPreferences `json:"preferences"`
	PushTokens    []domain.PushToken               `json:"pushTokens"`
	RiverMappings []domain.RiverMapping            `json:"riverMappings"`
	Stations      []domain.Station                 `json:"stations"`
	Thresholds    []Threshold                      `json:"thresholds"`
}

// Threshold is a raw threshold payload for one river, in any stored shape.
type Threshold struct {
	RiverID string          `json:"riverId"`
	Payload json.RawMessage `json:"payload"`
}

// Load reads and decodes a fixture file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read fixture: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return f, nil
}

// Writer persists fixture records.
type Writer interface {
	PutPreferences(ctx context.Context, p domain.NotificationPreferences) error
	PutPushToken(ctx context.Context, tok domain.PushToken) error
	PutRiverMapping(ctx context.Context, m domain.RiverMapping) error
	PutStation(ctx context.Context, st domain.Station) error
	PutThresholdRecord(ctx context.Context, rec domain.ThresholdRecord) error
}

// Counts tallies records written by Apply.
type Counts struct {
	Preferences   int `json:"preferences"`
	PushTokens    int `json:"pushTokens"`
	RiverMappings int `json:"riverMappings"`
	Stations      int `json:"stations"`
	Thresholds    int `json:"thresholds"`
}

// Apply writes every record in f, stamping tokens and thresholds with now.
// It stops at the first failed write.
func Apply(ctx context.Context, w Writer, f File, now time.Time) (Counts, error) {
	var c Counts
	for _, p := range f.Preferences {
		if err := w.PutPreferences(ctx, p); err != nil {
			return c, err
		}
		c.Preferences++
	}
	for _, tok := range f.PushTokens {
		if tok.UpdatedAt.IsZero() {
			tok.UpdatedAt = now
		}
		if err := w.PutPushToken(ctx, tok); err != nil {
			return c, err
		}
		c.PushTokens++
	}
	for _, m := range f.RiverMappings {
		if err := w.PutRiverMapping(ctx, m); err != nil {
			return c, err
		}
		c.RiverMappings++
	}
	for _, st := range f.Stations {
		if err := w.PutStation(ctx, st); err != nil {
			return c, err
		}
		c.Stations++
	}
	for _, th := range f.Thresholds {
		rec := domain.ThresholdRecord{RiverID: th.RiverID, Payload: th.Payload, LastUpdated: now}
		if err := w.PutThresholdRecord(ctx, rec); err != nil {
			return c, err
		}
		c.Thresholds++
	}
	return c, nil
}

// Phase collects the problems found by one group of checks.
type Phase struct {
	Name     string   `json:"name"`
	Problems []string `json:"problems,omitempty"`
}

func (p *Phase) errorf(format string, args ...any) {
	p.Problems = append(p.Problems, fmt.Sprintf(format, args...))
}

// Passed reports whether the phase found no problems.
func (p Phase) Passed() bool { return len(p.Problems) == 0 }

// Report is the result of Check.
type Report struct {
	Phases []Phase `json:"phases"`
	// Shapes maps each river to the threshold layout its payload parsed as.
	Shapes map[string]string `json:"shapes"`
}

// Passed reports whether every phase passed.
func (r Report) Passed() bool {
	for _, p := range r.Phases {
		if !p.Passed() {
			return false
		}
	}
	return true
}

var preferencesSchema = z.Struct(z.Shape{
	"userID":           z.String().Required(),
	"quietHourStart":   z.Int().GTE(0).LTE(23),
	"quietMinuteStart": z.Int().GTE(0).LTE(59),
	"quietHourEnd":     z.Int().GTE(0).LTE(23),
	"quietMinuteEnd":   z.Int().GTE(0).LTE(59),
})

// Check validates f without writing it: identifiers are present and unique,
// preferences are well formed, and every threshold payload parses.
func Check(f File) Report {
	r := Report{Shapes: make(map[string]string, len(f.Thresholds))}

	prefs := Phase{Name: "preferences"}
	seen := make(map[string]bool, len(f.Preferences))
	for i, p := range f.Preferences {
		if issues := preferencesSchema.Validate(&p); issues != nil {
			sanitized := z.Issues.SanitizeMap(issues)
			fields := make([]string, 0, len(sanitized))
			for field := range sanitized {
				if !strings.HasPrefix(field, "$") {
					fields = append(fields, field)
				}
			}
			sort.Strings(fields)
			for _, field := range fields {
				prefs.errorf("preferences[%d]: %s: %s", i, field, strings.Join(sanitized[field], "; "))
			}
		}
		if p.UserID == "" {
			continue
		}
		if seen[p.UserID] {
			prefs.errorf("preferences[%d]: duplicate userId %s", i, p.UserID)
		}
		seen[p.UserID] = true
		if p.Enabled && len(p.MonitoredRiverIDs) == 0 {
			prefs.errorf("%s: enabled with no monitored rivers", p.UserID)
		}
		if p.Enabled && len(p.Ranges()) == 0 {
			prefs.errorf("%s: enabled with no forecast range selected", p.UserID)
		}
		if p.Timezone != "" {
			if _, err := time.LoadLocation(p.Timezone); err != nil {
				prefs.errorf("%s: unknown timezone %q", p.UserID, p.Timezone)
			}
		}
	}

	tokens := Phase{Name: "push_tokens"}
	for i, tok := range f.PushTokens {
		if tok.UserID == "" || tok.Token == "" {
			tokens.errorf("pushTokens[%d]: userId and token are required", i)
		}
	}

	rivers := Phase{Name: "rivers"}
	for i, m := range f.RiverMappings {
		if m.RiverID == "" {
			rivers.errorf("riverMappings[%d]: missing riverId", i)
		}
	}
	for i, st := range f.Stations {
		if st.ID == "" {
			rivers.errorf("stations[%d]: missing id", i)
		}
	}

	thresholds := Phase{Name: "thresholds"}
	for i, th := range f.Thresholds {
		if th.RiverID == "" {
			thresholds.errorf("thresholds[%d]: missing riverId", i)
			continue
		}
		table, shape, ok := threshold.Parse(th.RiverID, th.Payload)
		if !ok {
			thresholds.errorf("%s: payload matches no known threshold layout", th.RiverID)
			continue
		}
		r.Shapes[th.RiverID] = fmt.Sprintf("%s (%d periods)", shape, len(table.Periods))
	}

	r.Phases = []Phase{prefs, tokens, rivers, thresholds}
	return r
}
