package forecast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
	"github.com/couchcryptid/flow-alert-service/internal/observability"
)

var now = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

type mockStore struct {
	mu      sync.Mutex
	records map[string]domain.ForecastRecord
	puts    int
	getErr  error
	putErr  error
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string]domain.ForecastRecord)}
}

func (m *mockStore) GetForecastRecord(_ context.Context, riverID string) (domain.ForecastRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.ForecastRecord{}, false, m.getErr
	}
	rec, ok := m.records[riverID]
	return rec, ok, nil
}

func (m *mockStore) PutForecastRecord(_ context.Context, rec domain.ForecastRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.records[rec.RiverID] = rec
	return nil
}

type mockSource struct {
	points map[domain.ForecastRange][]domain.ForecastPoint
	errs   map[domain.ForecastRange]error
	calls  atomic.Int32

	// barrier, when set, holds each call until both ranges are in flight.
	barrier *sync.WaitGroup
}

func (m *mockSource) FetchStreamflow(_ context.Context, _ string, rng domain.ForecastRange) ([]domain.ForecastPoint, error) {
	m.calls.Add(1)
	if m.barrier != nil {
		m.barrier.Done()
		m.barrier.Wait()
	}
	if err := m.errs[rng]; err != nil {
		return nil, err
	}
	return m.points[rng], nil
}

func point(flow float64, at time.Time, rng domain.ForecastRange) domain.ForecastPoint {
	return domain.ForecastPoint{Flow: flow, Unit: domain.UnitCFS, ValidTime: at, Range: rng}
}

func sourceWith() *mockSource {
	return &mockSource{
		points: map[domain.ForecastRange][]domain.ForecastPoint{
			domain.RangeShort: {
				point(3000, now.Add(-time.Hour), domain.RangeShort),
				point(4500, now.Add(24*time.Hour), domain.RangeShort),
			},
			domain.RangeMedium: {
				point(5200, now.Add(96*time.Hour), domain.RangeMedium),
			},
		},
		errs: map[domain.ForecastRange]error{},
	}
}

func newTestCache(store Store, source Source) (*Cache, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCache(store, source, DefaultTTL, clockwork.NewFakeClockAt(now), metrics, logger), metrics
}

func TestCache_Get_MissFetchesAndStores(t *testing.T) {
	store := newMockStore()
	source := sourceWith()
	c, metrics := newTestCache(store, source)

	series, ok := c.Get(context.Background(), "R1", "23021904")
	require.True(t, ok)
	require.Len(t, series.Short, 1, "past points are dropped")
	assert.Equal(t, 4500.0, series.Short[0].Flow)
	require.Len(t, series.Medium, 1)
	assert.Equal(t, int32(2), source.calls.Load())

	rec := store.records["R1"]
	assert.Equal(t, "23021904", rec.ExternalID)
	assert.Equal(t, now, rec.LastUpdated)
	assert.Len(t, rec.ShortRangeForecasts, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ForecastCache.WithLabelValues("miss")), 0)
}

func TestCache_Get_FreshHitSkipsSource(t *testing.T) {
	store := newMockStore()
	store.records["R1"] = domain.ForecastRecord{
		RiverID:     "R1",
		ExternalID:  "23021904",
		LastUpdated: now.Add(-29 * time.Minute),
		ShortRangeForecasts: []domain.ForecastPoint{
			point(2000, now.Add(-10*time.Minute), domain.RangeShort),
			point(2100, now.Add(2*time.Hour), domain.RangeShort),
		},
	}
	source := sourceWith()
	c, metrics := newTestCache(store, source)

	series, ok := c.Get(context.Background(), "R1", "23021904")
	require.True(t, ok)
	assert.Zero(t, source.calls.Load())
	require.Len(t, series.Short, 1, "cached points already in the past are dropped")
	assert.Equal(t, 2100.0, series.Short[0].Flow)
	assert.Empty(t, series.Medium)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ForecastCache.WithLabelValues("hit")), 0)
}

func TestCache_Get_StaleRefetches(t *testing.T) {
	store := newMockStore()
	store.records["R1"] = domain.ForecastRecord{RiverID: "R1", LastUpdated: now.Add(-DefaultTTL)}
	source := sourceWith()
	c, metrics := newTestCache(store, source)

	_, ok := c.Get(context.Background(), "R1", "23021904")
	require.True(t, ok)
	assert.Equal(t, int32(2), source.calls.Load())
	assert.Equal(t, now, store.records["R1"].LastUpdated)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ForecastCache.WithLabelValues("stale")), 0)
}

func TestCache_Get_PartialFetchIsSuccess(t *testing.T) {
	store := newMockStore()
	store.records["R1"] = domain.ForecastRecord{RiverID: "R1", LastUpdated: now.Add(-2 * time.Hour)}
	source := sourceWith()
	source.errs[domain.RangeMedium] = errors.New("timeout")
	c, _ := newTestCache(store, source)

	series, ok := c.Get(context.Background(), "R1", "23021904")
	require.True(t, ok)
	assert.Len(t, series.Short, 1)
	assert.Empty(t, series.Medium)

	rec := store.records["R1"]
	assert.Equal(t, now, rec.LastUpdated, "a partial fetch still refreshes the TTL")
	assert.Len(t, rec.ShortRangeForecasts, 1)
	assert.Empty(t, rec.MediumRangeForecasts)
}

func TestCache_Get_BothFail(t *testing.T) {
	store := newMockStore()
	source := sourceWith()
	source.errs[domain.RangeShort] = errors.New("503")
	source.errs[domain.RangeMedium] = errors.New("503")
	c, _ := newTestCache(store, source)

	_, ok := c.Get(context.Background(), "R1", "23021904")
	assert.False(t, ok)
	assert.Zero(t, store.puts, "nothing is cached when both ranges fail")
}

func TestCache_Get_FetchesConcurrently(t *testing.T) {
	source := sourceWith()
	var barrier sync.WaitGroup
	barrier.Add(2)
	source.barrier = &barrier
	c, _ := newTestCache(newMockStore(), source)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := c.Get(context.Background(), "R1", "23021904")
		assert.True(t, ok)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("short and medium fetches did not run concurrently")
	}
}

func TestCache_Get_StoreErrorsDoNotBlockFetch(t *testing.T) {
	store := newMockStore()
	store.getErr = errors.New("store down")
	store.putErr = errors.New("store down")
	c, metrics := newTestCache(store, sourceWith())

	series, ok := c.Get(context.Background(), "R1", "23021904")
	require.True(t, ok)
	assert.Len(t, series.Short, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ForecastCache.WithLabelValues("error")), 0)
}

func TestSeries_Points(t *testing.T) {
	s := Series{
		Short:  []domain.ForecastPoint{point(1, now, domain.RangeShort)},
		Medium: []domain.ForecastPoint{point(2, now, domain.RangeMedium)},
	}
	assert.Len(t, s.Points([]domain.ForecastRange{domain.RangeShort, domain.RangeMedium}), 2)
	assert.Equal(t, 2.0, s.Points([]domain.ForecastRange{domain.RangeMedium})[0].Flow)
	assert.Empty(t, s.Points(nil))
}
