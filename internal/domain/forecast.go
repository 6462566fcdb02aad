package domain

import (
	"strings"
	"time"
)

// FlowUnit is the unit a flow value is expressed in.
type FlowUnit string

const (
	UnitCFS FlowUnit = "CFS"
	UnitCMS FlowUnit = "CMS"
)

// cmsPerCFS converts cubic feet per second to cubic meters per second.
const cmsPerCFS = 0.0283168

// ParseFlowUnit maps the unit spellings seen in stored records and source
// responses to a FlowUnit. Unknown or empty input is treated as CFS.
func ParseFlowUnit(s string) FlowUnit {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cms", "m3/s", "m³/s", "cumecs":
		return UnitCMS
	default:
		return UnitCFS
	}
}

// ParseFlowScale is ParseFlowUnit for values that may be declared in
// thousands of CFS. It returns the multiplier that brings such a value to
// the returned unit.
func ParseFlowScale(s string) (float64, FlowUnit) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kcfs", "kft³/s", "kft3/s":
		return 1000, UnitCFS
	default:
		return 1, ParseFlowUnit(s)
	}
}

// ConvertFlow converts value from one unit to another.
func ConvertFlow(value float64, from, to FlowUnit) float64 {
	if from == to {
		return value
	}
	if from == UnitCFS && to == UnitCMS {
		return value * cmsPerCFS
	}
	return value / cmsPerCFS
}

// ForecastRange identifies a forecast horizon.
type ForecastRange string

const (
	RangeShort  ForecastRange = "short"
	RangeMedium ForecastRange = "medium"
)

// Series returns the forecast source's series name for the range.
func (r ForecastRange) Series() string {
	if r == RangeMedium {
		return "medium_range"
	}
	return "short_range"
}

// ForecastPoint is a single forecasted flow value.
type ForecastPoint struct {
	Flow      float64       `json:"flow"`
	Unit      FlowUnit      `json:"unit"`
	ValidTime time.Time     `json:"validTime"`
	Range     ForecastRange `json:"range"`
}

// FutureOnly returns the points whose valid time is strictly after now,
// preserving order.
func FutureOnly(points []ForecastPoint, now time.Time) []ForecastPoint {
	out := make([]ForecastPoint, 0, len(points))
	for _, p := range points {
		if p.ValidTime.After(now) {
			out = append(out, p)
		}
	}
	return out
}
