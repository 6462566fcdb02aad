package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
)

type mockStore struct {
	mappings   map[string]domain.RiverMapping
	stations   map[string]domain.Station
	mappingErr error
	stationErr error
}

func (m *mockStore) GetRiverMapping(_ context.Context, riverID string) (domain.RiverMapping, bool, error) {
	if m.mappingErr != nil {
		return domain.RiverMapping{}, false, m.mappingErr
	}
	v, ok := m.mappings[riverID]
	return v, ok, nil
}

func (m *mockStore) GetStation(_ context.Context, id string) (domain.Station, bool, error) {
	if m.stationErr != nil {
		return domain.Station{}, false, m.stationErr
	}
	v, ok := m.stations[id]
	return v, ok, nil
}

func newResolver(store Store) *Resolver {
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResolve_Order(t *testing.T) {
	store := &mockStore{
		mappings: map[string]domain.RiverMapping{
			"snake":     {RiverID: "snake", ExternalID: "23021904", Name: "Snake River"},
			"12345678":  {RiverID: "12345678", ExternalID: "87654321"},
			"name-only": {RiverID: "name-only", Name: "Boise River"},
		},
		stations: map[string]domain.Station{
			"snake":     {ID: "snake", ReachID: "11111111"},
			"BOII1":     {ID: "BOII1", Name: "Boise at Glenwood", ReachID: "23123456"},
			"name-only": {ID: "name-only", Name: "Glenwood gauge", ReachID: "23999999"},
			"no-reach":  {ID: "no-reach", Name: "Dry Creek"},
		},
	}
	r := newResolver(store)

	tests := []struct {
		riverID string
		want    domain.RiverRef
	}{
		{"snake", domain.RiverRef{RiverID: "snake", ExternalID: "23021904", Name: "Snake River", Source: domain.ResolvedByMapping}},
		{"12345678", domain.RiverRef{RiverID: "12345678", ExternalID: "87654321", Source: domain.ResolvedByMapping}},
		{"2302190", domain.RiverRef{RiverID: "2302190", ExternalID: "2302190", Source: domain.ResolvedByPattern}},
		{"BOII1", domain.RiverRef{RiverID: "BOII1", ExternalID: "23123456", Name: "Boise at Glenwood", Source: domain.ResolvedByStation}},
		{"name-only", domain.RiverRef{RiverID: "name-only", ExternalID: "23999999", Name: "Boise River", Source: domain.ResolvedByStation}},
		{"no-reach", domain.RiverRef{RiverID: "no-reach", ExternalID: "no-reach", Name: "Dry Creek", Source: domain.ResolvedByFallback}},
		{"unknown", domain.RiverRef{RiverID: "unknown", ExternalID: "unknown", Source: domain.ResolvedByFallback}},
	}
	for _, tt := range tests {
		t.Run(tt.riverID, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(context.Background(), tt.riverID))
		})
	}
}

func TestResolve_PatternBounds(t *testing.T) {
	r := newResolver(&mockStore{})
	for _, id := range []string{"123456", "1234567890", "12a45678", " 1234567"} {
		assert.Equal(t, domain.ResolvedByFallback, r.Resolve(context.Background(), id).Source, id)
	}
	for _, id := range []string{"1234567", "123456789"} {
		assert.Equal(t, domain.ResolvedByPattern, r.Resolve(context.Background(), id).Source, id)
	}
}

func TestResolve_StoreErrorsFallThrough(t *testing.T) {
	store := &mockStore{
		mappingErr: errors.New("timeout"),
		stations:   map[string]domain.Station{"BOII1": {ID: "BOII1", ReachID: "23123456"}},
	}
	r := newResolver(store)
	ref := r.Resolve(context.Background(), "BOII1")
	assert.Equal(t, "23123456", ref.ExternalID)
	assert.Equal(t, domain.ResolvedByStation, ref.Source)

	store.stationErr = errors.New("timeout")
	ref = r.Resolve(context.Background(), "BOII1")
	assert.Equal(t, "BOII1", ref.ExternalID)
	assert.Equal(t, domain.ResolvedByFallback, ref.Source)
}
