package decode

import (
	"encoding/json"
	"fmt"
)

// Overview metric ids used by the dashboard.
const (
	MetricMRR                 = "mrr"
	MetricActiveSubscriptions = "active_subscriptions"
	MetricActiveTrials        = "active_trials"
	MetricNewCustomers        = "new_customers"
	MetricRevenue             = "revenue"
	MetricActiveUsers         = "active_users"
)

// OverviewMetric is one entry of the overview response.
type OverviewMetric struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Unit   string    `json:"unit"`
	Period string    `json:"period"`
	Value  FlexFloat `json:"value"`
}

// Overview is the decoded metrics overview.
type Overview struct {
	Metrics  []OverviewMetric `json:"metrics"`
	Currency string           `json:"currency"`
}

// Value returns the metric with the given id. Missing or null metrics
// report false.
func (o Overview) Value(id string) (float64, bool) {
	for _, m := range o.Metrics {
		if m.ID == id && m.Value.Valid {
			return m.Value.Value, true
		}
	}
	return 0, false
}

// DecodeOverview parses an overview response. A body that is not a JSON
// object with a metrics list is an error.
func DecodeOverview(body []byte) (Overview, error) {
	var envelope struct {
		Metrics  *[]OverviewMetric `json:"metrics"`
		Currency string            `json:"currency"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Overview{}, fmt.Errorf("parsing overview: %w", err)
	}
	if envelope.Metrics == nil {
		return Overview{}, fmt.Errorf("parsing overview: missing metrics list")
	}
	return Overview{Metrics: *envelope.Metrics, Currency: envelope.Currency}, nil
}
