package threshold

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
)

// Shape identifies one of the historical layouts a threshold record was stored in.
type Shape int

const (
	ShapeUnknown     Shape = iota
	ShapeRecordArray       // [{"return_period_2": ...}]
	ShapeNestedData        // {"data": {"data": [{"return_period_2": ...}]}}
	ShapeFlatRecord        // {"return_period_2": ...}
	ShapePeriodsMap        // {"periods": {"2": ...}}
)

func (s Shape) String() string {
	switch s {
	case ShapeRecordArray:
		return "record_array"
	case ShapeNestedData:
		return "nested_data"
	case ShapeFlatRecord:
		return "flat_record"
	case ShapePeriodsMap:
		return "periods_map"
	default:
		return "unknown"
	}
}

const fieldPrefix = "return_period_"

// parser extracts return periods and an optional declared unit. It reports
// false when the payload does not carry the shape or yields no periods.
type parser func(raw []byte) (periods map[int]float64, unit string, ok bool)

// parsers are tried in order. The periods map is last: it is only consulted
// when none of the return_period_<N> layouts produced anything.
var parsers = []struct {
	shape Shape
	parse parser
}{
	{ShapeRecordArray, parseRecordArray},
	{ShapeNestedData, parseNestedData},
	{ShapeFlatRecord, parseFlatRecord},
	{ShapePeriodsMap, parsePeriodsMap},
}

// Parse extracts a threshold table from a stored payload. The returned Shape
// names the layout that matched.
func Parse(riverID string, raw []byte) (domain.ThresholdTable, Shape, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return domain.ThresholdTable{}, ShapeUnknown, false
	}
	for _, p := range parsers {
		periods, unit, ok := p.parse(raw)
		if !ok {
			continue
		}
		scale, flowUnit := domain.ParseFlowScale(unit)
		if scale != 1 {
			for years, flow := range periods {
				periods[years] = flow * scale
			}
		}
		return domain.ThresholdTable{
			RiverID: riverID,
			Periods: periods,
			Unit:    flowUnit,
		}, p.shape, true
	}
	return domain.ThresholdTable{}, ShapeUnknown, false
}

func parseRecordArray(raw []byte) (map[int]float64, string, bool) {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, "", false
	}
	for _, rec := range records {
		if periods := returnPeriodFields(rec); len(periods) > 0 {
			return periods, unitField(rec), true
		}
	}
	return nil, "", false
}

func parseNestedData(raw []byte) (map[int]float64, string, bool) {
	var outer struct {
		Data struct {
			Data json.RawMessage `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &outer); err != nil || len(outer.Data.Data) == 0 {
		return nil, "", false
	}
	periods, unit, ok := parseRecordArray(outer.Data.Data)
	if !ok {
		return nil, "", false
	}
	if unit == "" {
		var obj map[string]json.RawMessage
		if json.Unmarshal(raw, &obj) == nil {
			unit = unitField(obj)
		}
	}
	return periods, unit, true
}

func parseFlatRecord(raw []byte) (map[int]float64, string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, "", false
	}
	periods := returnPeriodFields(obj)
	if len(periods) == 0 {
		return nil, "", false
	}
	return periods, unitField(obj), true
}

func parsePeriodsMap(raw []byte) (map[int]float64, string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, "", false
	}
	var byYear map[string]json.RawMessage
	if err := json.Unmarshal(obj["periods"], &byYear); err != nil {
		return nil, "", false
	}
	periods := make(map[int]float64)
	for key, v := range byYear {
		years, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || !domain.IsReturnPeriod(years) {
			continue
		}
		if flow, ok := number(v); ok {
			periods[years] = flow
		}
	}
	if len(periods) == 0 {
		return nil, "", false
	}
	return periods, unitField(obj), true
}

// returnPeriodFields reads the exact return_period_<N> keys for the supported
// years. Absent or non-numeric fields are skipped.
func returnPeriodFields(rec map[string]json.RawMessage) map[int]float64 {
	periods := make(map[int]float64)
	for _, years := range domain.ReturnPeriods {
		v, ok := rec[fieldPrefix+strconv.Itoa(years)]
		if !ok {
			continue
		}
		if flow, ok := number(v); ok {
			periods[years] = flow
		}
	}
	return periods
}

func unitField(obj map[string]json.RawMessage) string {
	for _, key := range []string{"unit", "units", "flowUnit"} {
		var s string
		if err := json.Unmarshal(obj[key], &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

// number accepts a JSON number or a numeric string. Non-positive and
// non-finite values are rejected.
func number(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	return f, true
}
