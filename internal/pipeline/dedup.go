package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDedupWindow is the trailing period in which a repeat alert is suppressed.
const DefaultDedupWindow = 24 * time.Hour

// HistoryReader answers whether an alert was already recorded.
type HistoryReader interface {
	// HasRecentAlert reports whether the history holds an alert for the
	// (user, river, return period) triple triggered at or after since.
	HasRecentAlert(ctx context.Context, userID, riverID string, returnPeriod int, since time.Time) (bool, error)
}

// DedupGuard suppresses alerts already sent for the same user, river and
// return period within the window. A different return period for the same
// river is a different key.
type DedupGuard struct {
	history HistoryReader
	window  time.Duration
	clock   clockwork.Clock
}

// NewDedupGuard creates a DedupGuard over the alert history.
func NewDedupGuard(history HistoryReader, window time.Duration, clock clockwork.Clock) *DedupGuard {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &DedupGuard{history: history, window: window, clock: clock}
}

// IsDuplicate checks the history for a matching alert inside the window.
func (g *DedupGuard) IsDuplicate(ctx context.Context, userID, riverID string, returnPeriod int) (bool, error) {
	since := g.clock.Now().Add(-g.window)
	dup, err := g.history.HasRecentAlert(ctx, userID, riverID, returnPeriod, since)
	if err != nil {
		return false, fmt.Errorf("query alert history: %w", err)
	}
	return dup, nil
}
