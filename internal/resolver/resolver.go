package resolver

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
)

// NWPS reach ids (NWM feature ids) are 7 to 9 digit numbers.
var externalIDPattern = regexp.MustCompile(`^\d{7,9}$`)

// Store reads the records that can carry a river's external id.
type Store interface {
	GetRiverMapping(ctx context.Context, riverID string) (domain.RiverMapping, bool, error)
	GetStation(ctx context.Context, id string) (domain.Station, bool, error)
}

// Resolver maps internal river ids to forecast-source reach ids.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// New creates a Resolver.
func New(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve returns the river's external id and display name. The first
// strategy that yields an id wins: an explicit mapping record, the id itself
// when it already looks like a reach id, a station record's reach id, and
// finally the id unchanged. Store errors fall through to the next strategy.
func (r *Resolver) Resolve(ctx context.Context, riverID string) domain.RiverRef {
	ref := domain.RiverRef{RiverID: riverID}

	m, found, err := r.store.GetRiverMapping(ctx, riverID)
	if err != nil {
		r.logger.Warn("river mapping lookup failed", "river_id", riverID, "error", err)
	}
	if found {
		ref.Name = m.Name
		if m.ExternalID != "" {
			ref.ExternalID = m.ExternalID
			ref.Source = domain.ResolvedByMapping
			return ref
		}
	}

	if externalIDPattern.MatchString(riverID) {
		ref.ExternalID = riverID
		ref.Source = domain.ResolvedByPattern
		return ref
	}

	st, found, err := r.store.GetStation(ctx, riverID)
	if err != nil {
		r.logger.Warn("station lookup failed", "river_id", riverID, "error", err)
	}
	if found {
		if ref.Name == "" {
			ref.Name = st.Name
		}
		if st.ReachID != "" {
			ref.ExternalID = st.ReachID
			ref.Source = domain.ResolvedByStation
			return ref
		}
	}

	r.logger.Debug("no external id found, using river id", "river_id", riverID)
	ref.ExternalID = riverID
	ref.Source = domain.ResolvedByFallback
	return ref
}
