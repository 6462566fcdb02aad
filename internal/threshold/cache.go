package threshold

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
	"github.com/couchcryptid/flow-alert-service/internal/observability"
)

// DefaultTTL is how long a cached threshold record is trusted.
const DefaultTTL = 7 * 24 * time.Hour

// Store reads persisted threshold records.
type Store interface {
	GetThresholdRecord(ctx context.Context, riverID string) (domain.ThresholdRecord, bool, error)
}

// Cache resolves threshold tables from the store. Thresholds are near-static
// and there is no live source behind the cache: a missing or stale record
// means the river has no usable thresholds this run.
type Cache struct {
	store   Store
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCache creates a threshold cache reader.
func NewCache(store Store, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:   store,
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// Get returns the river's threshold table, or false when none is available.
// Store errors are logged and reported as unavailable.
func (c *Cache) Get(ctx context.Context, riverID string) (domain.ThresholdTable, bool) {
	rec, found, err := c.store.GetThresholdRecord(ctx, riverID)
	if err != nil {
		c.metrics.ThresholdCache.WithLabelValues("error").Inc()
		c.logger.Warn("threshold cache read failed", "river_id", riverID, "error", err)
		return domain.ThresholdTable{}, false
	}
	if !found {
		c.metrics.ThresholdCache.WithLabelValues("miss").Inc()
		c.logger.Debug("no cached thresholds", "river_id", riverID)
		return domain.ThresholdTable{}, false
	}

	age := c.clock.Since(rec.LastUpdated)
	if age >= c.ttl {
		c.metrics.ThresholdCache.WithLabelValues("stale").Inc()
		c.logger.Info("cached thresholds expired", "river_id", riverID, "age", age.Round(time.Minute))
		return domain.ThresholdTable{}, false
	}

	table, shape, ok := Parse(riverID, rec.Payload)
	if !ok {
		c.metrics.ThresholdCache.WithLabelValues("invalid").Inc()
		c.logger.Warn("cached thresholds unparseable", "river_id", riverID)
		return domain.ThresholdTable{}, false
	}
	table.LastUpdated = rec.LastUpdated

	c.metrics.ThresholdCache.WithLabelValues("hit").Inc()
	c.logger.Debug("thresholds resolved", "river_id", riverID, "shape", shape.String(), "periods", len(table.Periods))
	return table, true
}
