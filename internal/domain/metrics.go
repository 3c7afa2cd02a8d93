package domain

import "time"

// ChartPoint is one dated value of a chart series. Date is "YYYY-MM-DD" in
// UTC. A nil Value means the upstream sent no value for that day.
type ChartPoint struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// Point builds a ChartPoint with a present value.
func Point(date string, v float64) ChartPoint {
	return ChartPoint{Date: date, Value: &v}
}

// ValueOrZero returns the value, or 0 when absent.
func (p ChartPoint) ValueOrZero() float64 {
	if p.Value == nil {
		return 0
	}
	return *p.Value
}

// ChartSet holds the four dashboard series.
type ChartSet struct {
	MRR             []ChartPoint `json:"mrr"`
	Subscribers     []ChartPoint `json:"subscribers"`
	Revenue         []ChartPoint `json:"revenue"`
	TrialConversion []ChartPoint `json:"trial_conversion"`
}

// HasData reports whether any series has at least one point.
func (c ChartSet) HasData() bool {
	return len(c.MRR) > 0 || len(c.Subscribers) > 0 || len(c.Revenue) > 0 || len(c.TrialConversion) > 0
}

// ReportChartSet extends ChartSet with subscriber movement for reports.
type ReportChartSet struct {
	ChartSet
	Movement []ChartPoint `json:"movement"`
}

// HasData reports whether any series has at least one point.
func (c ReportChartSet) HasData() bool {
	return c.ChartSet.HasData() || len(c.Movement) > 0
}

// DashboardData is the point-in-time snapshot for one project, or the
// total across projects.
type DashboardData struct {
	MRR                   float64   `json:"mrr"`
	MRRChange24h          float64   `json:"mrr_change_24h"`
	ActiveSubscriptions   int       `json:"active_subscriptions"`
	ActiveTrials          int       `json:"active_trials"`
	NewCustomersToday     int       `json:"new_customers_today"`
	NewSubscriptionsToday int       `json:"new_subscriptions_today"`
	TrialsConvertingToday int       `json:"trials_converting_today"`
	TrialPrediction       int       `json:"trial_prediction"`
	TrialConversionRate   float64   `json:"trial_conversion_rate"`
	Currency              string    `json:"currency"`
	LastUpdated           time.Time `json:"last_updated"`
	Charts                *ChartSet `json:"charts,omitempty"`
}

// NewToday is the greater of the customer-level and subscription-level
// "new today" counts.
func (d DashboardData) NewToday() int {
	if d.NewSubscriptionsToday > d.NewCustomersToday {
		return d.NewSubscriptionsToday
	}
	return d.NewCustomersToday
}

// ProjectSnapshot pairs a project with its latest data or error.
type ProjectSnapshot struct {
	Project Project        `json:"project"`
	Data    *DashboardData `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}
