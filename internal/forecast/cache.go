package forecast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
	"github.com/couchcryptid/flow-alert-service/internal/observability"
)

// DefaultTTL is how long a cached forecast record is served without refetching.
const DefaultTTL = 30 * time.Minute

// Source fetches one forecast range for a reach.
type Source interface {
	FetchStreamflow(ctx context.Context, externalID string, rng domain.ForecastRange) ([]domain.ForecastPoint, error)
}

// Store persists forecast cache records keyed by river id.
type Store interface {
	GetForecastRecord(ctx context.Context, riverID string) (domain.ForecastRecord, bool, error)
	PutForecastRecord(ctx context.Context, rec domain.ForecastRecord) error
}

// Series is the pair of forecast ranges for one river.
type Series struct {
	Short  []domain.ForecastPoint
	Medium []domain.ForecastPoint
}

// Points returns the points for the requested ranges, short range first.
func (s Series) Points(ranges []domain.ForecastRange) []domain.ForecastPoint {
	var out []domain.ForecastPoint
	for _, r := range ranges {
		switch r {
		case domain.RangeShort:
			out = append(out, s.Short...)
		case domain.RangeMedium:
			out = append(out, s.Medium...)
		}
	}
	return out
}

// Cache serves forecasts from the store while fresh and refetches both
// ranges concurrently once the record is missing or stale.
type Cache struct {
	store   Store
	source  Source
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCache creates a forecast cache.
func NewCache(store Store, source Source, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:   store,
		source:  source,
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// Get returns future forecast points for the river. It reports false only
// when there is no fresh record and both range fetches failed.
func (c *Cache) Get(ctx context.Context, riverID, externalID string) (Series, bool) {
	now := c.clock.Now()

	rec, found, err := c.store.GetForecastRecord(ctx, riverID)
	switch {
	case err != nil:
		c.metrics.ForecastCache.WithLabelValues("error").Inc()
		c.logger.Warn("forecast cache read failed", "river_id", riverID, "error", err)
	case found && now.Sub(rec.LastUpdated) < c.ttl:
		c.metrics.ForecastCache.WithLabelValues("hit").Inc()
		return Series{
			Short:  domain.FutureOnly(rec.ShortRangeForecasts, now),
			Medium: domain.FutureOnly(rec.MediumRangeForecasts, now),
		}, true
	case found:
		c.metrics.ForecastCache.WithLabelValues("stale").Inc()
	default:
		c.metrics.ForecastCache.WithLabelValues("miss").Inc()
	}

	series, ok := c.fetch(ctx, externalID, now)
	if !ok {
		c.logger.Warn("forecast unavailable", "river_id", riverID, "external_id", externalID)
		return Series{}, false
	}

	rec = domain.ForecastRecord{
		RiverID:              riverID,
		ExternalID:           externalID,
		ShortRangeForecasts:  series.Short,
		MediumRangeForecasts: series.Medium,
		LastUpdated:          now,
	}
	if err := c.store.PutForecastRecord(ctx, rec); err != nil {
		c.logger.Warn("forecast cache write failed", "river_id", riverID, "error", err)
	}
	return series, true
}

// fetch requests both ranges concurrently. One failing range leaves its
// series empty; the result is ok if either succeeded.
func (c *Cache) fetch(ctx context.Context, externalID string, now time.Time) (Series, bool) {
	var (
		wg               sync.WaitGroup
		short, medium    []domain.ForecastPoint
		shortErr, medErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		short, shortErr = c.source.FetchStreamflow(ctx, externalID, domain.RangeShort)
	}()
	go func() {
		defer wg.Done()
		medium, medErr = c.source.FetchStreamflow(ctx, externalID, domain.RangeMedium)
	}()
	wg.Wait()

	if shortErr != nil {
		c.logger.Warn("short range fetch failed", "external_id", externalID, "error", shortErr)
	}
	if medErr != nil {
		c.logger.Warn("medium range fetch failed", "external_id", externalID, "error", medErr)
	}
	if shortErr != nil && medErr != nil {
		return Series{}, false
	}
	return Series{
		Short:  domain.FutureOnly(short, now),
		Medium: domain.FutureOnly(medium, now),
	}, true
}
