package decode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/pulse/internal/domain"
	"github.com/ignite/pulse/internal/pkg/logger"
)

const category = "decode"

// SummaryEntry is one element of a chart summary given as a list.
type SummaryEntry struct {
	Operation string    `json:"operation"`
	Value     FlexFloat `json:"value"`
}

// Chart is a decoded chart response.
type Chart struct {
	Points  []domain.ChartPoint
	Summary []SummaryEntry
}

type chartEnvelope struct {
	Values    json.RawMessage `json:"values"`
	StartDate json.RawMessage `json:"start_date"`
	EndDate   json.RawMessage `json:"end_date"`
	Summary   json.RawMessage `json:"summary"`
}

// DecodeChart parses a chart response. Two value shapes are accepted: a
// list of {date, value} objects, and a list of single-element numeric
// lists whose dates are start_date plus the element index in days.
// Anything else yields an empty chart and a warning; it never fails.
func DecodeChart(body []byte, log logger.Func) Chart {
	var env chartEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		log(fmt.Sprintf("chart response is not a JSON object: %v", err), logger.WARN, category)
		return Chart{}
	}

	chart := Chart{Summary: decodeSummary(env.Summary)}
	if isNull(env.Values) {
		log("chart response has no values", logger.WARN, category)
		return chart
	}

	start, hasStart := ParseFlexDate(env.StartDate)

	var objects []map[string]json.RawMessage
	if err := json.Unmarshal(env.Values, &objects); err == nil {
		chart.Points = dedupe(pointsFromObjects(objects, start, hasStart))
		return chart
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(env.Values, &rows); err == nil {
		points, ok := pointsFromRows(rows, start, hasStart)
		if !ok {
			log("chart values carry no dates and start_date is missing", logger.WARN, category)
			return chart
		}
		chart.Points = dedupe(points)
		return chart
	}

	log("chart values have an unrecognized shape", logger.WARN, category)
	return chart
}

func pointsFromObjects(objects []map[string]json.RawMessage, start time.Time, hasStart bool) []domain.ChartPoint {
	points := make([]domain.ChartPoint, 0, len(objects))
	for i, obj := range objects {
		date, ok := ParseFlexDate(obj["date"])
		if !ok {
			if !hasStart {
				continue
			}
			date = start.AddDate(0, 0, i)
		}
		var v FlexFloat
		if raw, present := obj["value"]; present {
			_ = v.UnmarshalJSON(raw)
		}
		points = append(points, domain.ChartPoint{Date: DateKey(date), Value: v.Ptr()})
	}
	return points
}

// pointsFromRows handles the array-of-arrays shape. A row with two or more
// elements is read as [date, ..., value].
func pointsFromRows(rows [][]json.RawMessage, start time.Time, hasStart bool) ([]domain.ChartPoint, bool) {
	points := make([]domain.ChartPoint, 0, len(rows))
	for i, row := range rows {
		var date time.Time
		var v FlexFloat
		switch {
		case len(row) >= 2:
			d, ok := ParseFlexDate(row[0])
			if !ok {
				if !hasStart {
					return nil, false
				}
				d = start.AddDate(0, 0, i)
			}
			date = d
			_ = v.UnmarshalJSON(row[len(row)-1])
		default:
			if !hasStart {
				return nil, false
			}
			date = start.AddDate(0, 0, i)
			if len(row) == 1 {
				_ = v.UnmarshalJSON(row[0])
			}
		}
		points = append(points, domain.ChartPoint{Date: DateKey(date), Value: v.Ptr()})
	}
	return points, true
}

// dedupe keeps the first position of each date and the last value seen for it.
func dedupe(points []domain.ChartPoint) []domain.ChartPoint {
	index := make(map[string]int, len(points))
	out := points[:0]
	for _, p := range points {
		if i, ok := index[p.Date]; ok {
			out[i].Value = p.Value
			continue
		}
		index[p.Date] = len(out)
		out = append(out, p)
	}
	return out
}

func decodeSummary(raw json.RawMessage) []SummaryEntry {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var entries []SummaryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	return entries
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || string(raw) == "null"
}
