package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func r1Table() ThresholdTable {
	return ThresholdTable{
		RiverID: "R1",
		Periods: map[int]float64{2: 1000, 5: 2000, 10: 4000},
		Unit:    UnitCFS,
	}
}

func cfsPoint(flow float64) ForecastPoint {
	return ForecastPoint{Flow: flow, Unit: UnitCFS, ValidTime: time.Now().Add(24 * time.Hour), Range: RangeShort}
}

func TestMatchFlow_ExampleScenario(t *testing.T) {
	m, ok := MatchFlow(cfsPoint(4500), r1Table())
	require.True(t, ok)
	assert.Equal(t, 10, m.ReturnPeriod)
	assert.Equal(t, 4000.0, m.ThresholdFlow)
	assert.Equal(t, SeverityMajor, m.Severity)
}

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		name    string
		flow    float64
		want    int
		matched bool
	}{
		{"below every threshold", 999, 0, false},
		{"equal to 2-year", 1000, 2, true},
		{"between 2 and 5", 1500, 2, true},
		{"equal to 5-year", 2000, 5, true},
		{"just below 10-year", 3999.9, 5, true},
		{"equal to 10-year", 4000, 10, true},
		{"far above highest", 1e6, 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(cfsPoint(tt.flow), r1Table())
			assert.Equal(t, tt.matched, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_EmptyTable(t *testing.T) {
	_, ok := Classify(cfsPoint(1e9), ThresholdTable{Unit: UnitCFS})
	assert.False(t, ok)
}

func TestClassify_HundredYearIsNotAlsoLower(t *testing.T) {
	table := ThresholdTable{
		Periods: map[int]float64{2: 100, 5: 200, 10: 300, 25: 400, 50: 500, 100: 600},
		Unit:    UnitCFS,
	}
	m, ok := MatchFlow(cfsPoint(650), table)
	require.True(t, ok)
	assert.Equal(t, 100, m.ReturnPeriod)
	assert.Equal(t, SeverityExtreme, m.Severity)
}

func TestClassify_TieResolvesToHighestYear(t *testing.T) {
	table := ThresholdTable{
		Periods: map[int]float64{2: 1000, 5: 1000, 10: 3000},
		Unit:    UnitCFS,
	}
	got, ok := Classify(cfsPoint(1000), table)
	require.True(t, ok)
	assert.Equal(t, 5, got)
}

func TestClassify_Monotonic(t *testing.T) {
	tables := []ThresholdTable{
		r1Table(),
		{Periods: map[int]float64{2: 50, 25: 900, 100: 2500}, Unit: UnitCFS},
		// Out-of-order values still must not classify a larger flow lower.
		{Periods: map[int]float64{2: 800, 5: 600, 10: 1200, 50: 1100}, Unit: UnitCFS},
	}
	for _, table := range tables {
		prev := 0
		for flow := 0.0; flow <= 5000; flow += 25 {
			got, ok := Classify(cfsPoint(flow), table)
			if !ok {
				assert.Zero(t, prev, "flow %v lost a match a lower flow had", flow)
				continue
			}
			assert.GreaterOrEqual(t, got, prev, "flow %v", flow)
			prev = got
		}
	}
}

func TestMatchFlow_OutOfOrderTablePicksLargestYearReached(t *testing.T) {
	// 50-year flow sits below the 10-year flow.
	table := ThresholdTable{Periods: map[int]float64{2: 800, 10: 1200, 50: 1100}, Unit: UnitCFS}

	m, ok := MatchFlow(cfsPoint(1250), table)
	require.True(t, ok)
	assert.Equal(t, 50, m.ReturnPeriod)
	assert.Equal(t, 1100.0, m.ThresholdFlow)

	m, ok = MatchFlow(cfsPoint(1150), table)
	require.True(t, ok)
	assert.Equal(t, 50, m.ReturnPeriod)
}

func TestMatchFlow_ConvertsTableUnit(t *testing.T) {
	table := ThresholdTable{Periods: map[int]float64{10: 100}, Unit: UnitCMS}

	m, ok := MatchFlow(cfsPoint(3600), table)
	require.True(t, ok)
	assert.Equal(t, 10, m.ReturnPeriod)
	assert.InDelta(t, 3531.47, m.ThresholdFlow, 0.01)

	_, ok = MatchFlow(cfsPoint(3500), table)
	assert.False(t, ok)
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityModerate, SeverityFor(2))
	assert.Equal(t, SeveritySignificant, SeverityFor(5))
	assert.Equal(t, SeverityMajor, SeverityFor(10))
	assert.Equal(t, SeveritySevere, SeverityFor(25))
	assert.Equal(t, SeverityExtreme, SeverityFor(50))
	assert.Equal(t, SeverityExtreme, SeverityFor(100))
}

func TestConvertFlow(t *testing.T) {
	assert.Equal(t, 10.0, ConvertFlow(10, UnitCFS, UnitCFS))
	assert.InDelta(t, 0.0283168, ConvertFlow(1, UnitCFS, UnitCMS), 1e-9)
	assert.InDelta(t, 1.0, ConvertFlow(0.0283168, UnitCMS, UnitCFS), 1e-9)
}

func TestParseFlowUnit(t *testing.T) {
	assert.Equal(t, UnitCMS, ParseFlowUnit("cms"))
	assert.Equal(t, UnitCMS, ParseFlowUnit(" CMS "))
	assert.Equal(t, UnitCMS, ParseFlowUnit("m³/s"))
	assert.Equal(t, UnitCFS, ParseFlowUnit("cfs"))
	assert.Equal(t, UnitCFS, ParseFlowUnit(""))
}

func TestParseFlowScale(t *testing.T) {
	scale, unit := ParseFlowScale("KCFS")
	assert.Equal(t, 1000.0, scale)
	assert.Equal(t, UnitCFS, unit)

	scale, unit = ParseFlowScale("cms")
	assert.Equal(t, 1.0, scale)
	assert.Equal(t, UnitCMS, unit)

	scale, unit = ParseFlowScale("")
	assert.Equal(t, 1.0, scale)
	assert.Equal(t, UnitCFS, unit)
}

func TestFutureOnly(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	points := []ForecastPoint{
		{Flow: 1, ValidTime: now.Add(-time.Hour)},
		{Flow: 2, ValidTime: now},
		{Flow: 3, ValidTime: now.Add(time.Hour)},
	}
	got := FutureOnly(points, now)
	require.Len(t, got, 1)
	assert.Equal(t, 3.0, got[0].Flow)
}
