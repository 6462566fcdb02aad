package domain

// Severity is the user-facing label derived from a matched return period.
type Severity string

const (
	SeverityModerate    Severity = "moderate"
	SeveritySignificant Severity = "significant"
	SeverityMajor       Severity = "major"
	SeveritySevere      Severity = "severe"
	SeverityExtreme     Severity = "extreme"
)

// SeverityFor maps a return period in years to a severity.
func SeverityFor(years int) Severity {
	switch {
	case years >= 50:
		return SeverityExtreme
	case years >= 25:
		return SeveritySevere
	case years >= 10:
		return SeverityMajor
	case years >= 5:
		return SeveritySignificant
	default:
		return SeverityModerate
	}
}

// Match is the result of classifying a forecast point against a table.
type Match struct {
	ReturnPeriod int
	// ThresholdFlow is the matched threshold expressed in the point's unit.
	ThresholdFlow float64
	Severity      Severity
}

// MatchFlow classifies a forecast point. Thresholds are walked highest flow
// first and converted to the point's unit; among the thresholds the flow
// reaches, the largest return period wins. A point below every threshold
// does not match.
func MatchFlow(point ForecastPoint, table ThresholdTable) (Match, bool) {
	var (
		best    Threshold
		matched bool
	)
	for _, th := range table.Descending() {
		flow := ConvertFlow(th.Flow, table.Unit, point.Unit)
		if point.Flow < flow {
			continue
		}
		if !matched || th.Years > best.Years {
			best = Threshold{Years: th.Years, Flow: flow}
			matched = true
		}
	}
	if !matched {
		return Match{}, false
	}
	return Match{
		ReturnPeriod:  best.Years,
		ThresholdFlow: best.Flow,
		Severity:      SeverityFor(best.Years),
	}, true
}

// Classify returns the return period a forecast point reaches, if any.
func Classify(point ForecastPoint, table ThresholdTable) (int, bool) {
	m, ok := MatchFlow(point, table)
	return m.ReturnPeriod, ok
}
