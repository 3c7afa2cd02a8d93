package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/pulse/internal/domain"
)

func values(points []domain.ChartPoint) []interface{} {
	out := make([]interface{}, len(points))
	for i, p := range points {
		if p.Value == nil {
			out[i] = nil
			continue
		}
		out[i] = *p.Value
	}
	return out
}

func dates(points []domain.ChartPoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.Date
	}
	return out
}

func TestDecodeChartObjectShape(t *testing.T) {
	body := []byte(`{
		"object": "chart_data",
		"values": [
			{"date": "2024-03-01", "value": 10.5},
			{"date": "2024-03-02", "value": null},
			{"date": 1709424000, "value": "12"}
		],
		"summary": {"total": 22.5}
	}`)
	log := &captureLog{}

	chart := DecodeChart(body, log.fn())

	assert.Equal(t, []string{"2024-03-01", "2024-03-02", "2024-03-03"}, dates(chart.Points))
	assert.Equal(t, []interface{}{10.5, nil, 12.0}, values(chart.Points))
	assert.Nil(t, chart.Summary)
	assert.Equal(t, 0, log.warnings())
}

func TestDecodeChartArrayShapeWithEpochStart(t *testing.T) {
	// 2024-03-01T00:00:00Z
	body := []byte(`{"start_date": 1709251200, "values": [[1.0], [2.5], [], [null]]}`)

	chart := DecodeChart(body, (&captureLog{}).fn())

	assert.Equal(t, []string{"2024-03-01", "2024-03-02", "2024-03-03", "2024-03-04"}, dates(chart.Points))
	assert.Equal(t, []interface{}{1.0, 2.5, nil, nil}, values(chart.Points))
}

func TestDecodeChartArrayShapeWithISOStart(t *testing.T) {
	body := []byte(`{"start_date": "2024-02-28T00:00:00Z", "values": [[4], [5], [6]]}`)

	chart := DecodeChart(body, (&captureLog{}).fn())

	assert.Equal(t, []string{"2024-02-28", "2024-02-29", "2024-03-01"}, dates(chart.Points))
}

func TestDecodeChartArrayShapeWithMillisStart(t *testing.T) {
	body := []byte(`{"start_date": 1709251200000, "values": [[7]]}`)

	chart := DecodeChart(body, (&captureLog{}).fn())

	require.Len(t, chart.Points, 1)
	assert.Equal(t, "2024-03-01", chart.Points[0].Date)
}

func TestDecodeChartArrayShapeWithoutStartWarns(t *testing.T) {
	log := &captureLog{}
	chart := DecodeChart([]byte(`{"values": [[1], [2]]}`), log.fn())

	assert.Empty(t, chart.Points)
	assert.Equal(t, 1, log.warnings())
}

func TestDecodeChartUnknownShapesNeverFail(t *testing.T) {
	bodies := []string{
		`{"values": {"a": 1}}`,
		`{"values": "nope"}`,
		`{"values": [1, 2, 3]}`,
		`{}`,
		`[]`,
		`garbage`,
	}
	for _, b := range bodies {
		log := &captureLog{}
		chart := DecodeChart([]byte(b), log.fn())
		assert.Empty(t, chart.Points, b)
		assert.Equal(t, 1, log.warnings(), b)
	}
}

func TestDecodeChartSummaryList(t *testing.T) {
	body := []byte(`{"values": [], "summary": [{"operation": "sum", "value": 42}]}`)

	chart := DecodeChart(body, (&captureLog{}).fn())

	assert.Empty(t, chart.Points)
	require.Len(t, chart.Summary, 1)
	assert.Equal(t, "sum", chart.Summary[0].Operation)
	assert.Equal(t, 42.0, chart.Summary[0].Value.Value)
}

func TestDecodeChartCollapsesDuplicateDates(t *testing.T) {
	body := []byte(`{"values": [
		{"date": "2024-03-01", "value": 1},
		{"date": "2024-03-02", "value": 2},
		{"date": "2024-03-01", "value": 3}
	]}`)

	chart := DecodeChart(body, (&captureLog{}).fn())

	assert.Equal(t, []string{"2024-03-01", "2024-03-02"}, dates(chart.Points))
	assert.Equal(t, []interface{}{3.0, 2.0}, values(chart.Points))
}
