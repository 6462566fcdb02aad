package domain

// RiverMapping is an explicit record linking an internal river ID to the
// forecast source's reach ID.
type RiverMapping struct {
	RiverID    string `json:"riverId"`
	ExternalID string `json:"externalId"`
	Name       string `json:"name,omitempty"`
}

// Station is a gauge/station record that may carry a denormalized reach ID.
type Station struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	ReachID string `json:"reachId,omitempty"`
}

// ResolutionSource records which strategy produced a RiverRef's external ID.
type ResolutionSource string

const (
	ResolvedByMapping  ResolutionSource = "mapping"
	ResolvedByPattern  ResolutionSource = "pattern"
	ResolvedByStation  ResolutionSource = "station"
	ResolvedByFallback ResolutionSource = "fallback"
)

// RiverRef is a river resolved for forecast lookups.
type RiverRef struct {
	RiverID    string
	ExternalID string
	Name       string
	Source     ResolutionSource
}

// DisplayName returns the river's name, or its ID when no name is known.
func (r RiverRef) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return "River " + r.RiverID
}
