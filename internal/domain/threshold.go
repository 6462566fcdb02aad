package domain

import (
	"sort"
	"time"
)

// ReturnPeriods lists the flood-frequency years a threshold table may carry.
var ReturnPeriods = []int{2, 5, 10, 25, 50, 100}

// ThresholdTable maps return-period years to flow for one river.
type ThresholdTable struct {
	RiverID     string          `json:"riverId"`
	Periods     map[int]float64 `json:"periods"`
	Unit        FlowUnit        `json:"unit"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// Threshold is one (year, flow) pair of a table.
type Threshold struct {
	Years int
	Flow  float64
}

// Descending returns the table's thresholds sorted by flow, highest first.
// Equal flows are ordered by the larger year first so ties resolve upward.
func (t ThresholdTable) Descending() []Threshold {
	out := make([]Threshold, 0, len(t.Periods))
	for years, flow := range t.Periods {
		out = append(out, Threshold{Years: years, Flow: flow})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Flow != out[j].Flow {
			return out[i].Flow > out[j].Flow
		}
		return out[i].Years > out[j].Years
	})
	return out
}

// IsReturnPeriod reports whether years is one of the supported return periods.
func IsReturnPeriod(years int) bool {
	for _, y := range ReturnPeriods {
		if y == years {
			return true
		}
	}
	return false
}
