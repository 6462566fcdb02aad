package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
	"github.com/couchcryptid/flow-alert-service/internal/forecast"
)

// riverData is everything the classifier needs for one river.
type riverData struct {
	ref        domain.RiverRef
	thresholds domain.ThresholdTable
	series     forecast.Series
	ok         bool
}

// riverMemo loads river data at most once per run. Users monitoring the same
// river share the load; concurrent callers for a river wait on one loader.
// A memo is discarded when its run ends.
type riverMemo struct {
	load  func(ctx context.Context, riverID string) riverData
	group singleflight.Group

	mu     sync.Mutex
	rivers map[string]riverData
}

func newRiverMemo(load func(ctx context.Context, riverID string) riverData) *riverMemo {
	return &riverMemo{
		load:   load,
		rivers: make(map[string]riverData),
	}
}

func (m *riverMemo) lookup(riverID string) (riverData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.rivers[riverID]
	return data, ok
}

func (m *riverMemo) get(ctx context.Context, riverID string) riverData {
	if data, ok := m.lookup(riverID); ok {
		return data
	}
	v, _, _ := m.group.Do(riverID, func() (any, error) {
		// A previous flight may have finished between the miss and Do.
		if data, ok := m.lookup(riverID); ok {
			return data, nil
		}
		data := m.load(ctx, riverID)
		m.mu.Lock()
		m.rivers[riverID] = data
		m.mu.Unlock()
		return data, nil
	})
	return v.(riverData)
}
