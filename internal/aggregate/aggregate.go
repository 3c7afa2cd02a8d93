// Package aggregate combines per-project snapshots and chart series.
package aggregate

import (
	"github.com/ignite/pulse/internal/domain"
)

// Total sums project snapshots into one. Counts and money are added field
// by field without weighting; the trial conversion rate is the unweighted
// mean of the inputs. LastUpdated is the latest input timestamp and the
// currency is the first input's. Returns nil for no input.
func Total(snapshots []domain.DashboardData) *domain.DashboardData {
	if len(snapshots) == 0 {
		return nil
	}

	total := domain.DashboardData{Currency: snapshots[0].Currency}
	var (
		rateSum float64
		charts  []domain.ChartSet
	)
	for _, s := range snapshots {
		total.MRR += s.MRR
		total.MRRChange24h += s.MRRChange24h
		total.ActiveSubscriptions += s.ActiveSubscriptions
		total.ActiveTrials += s.ActiveTrials
		total.NewCustomersToday += s.NewCustomersToday
		total.NewSubscriptionsToday += s.NewSubscriptionsToday
		total.TrialsConvertingToday += s.TrialsConvertingToday
		total.TrialPrediction += s.TrialPrediction
		rateSum += s.TrialConversionRate
		if s.LastUpdated.After(total.LastUpdated) {
			total.LastUpdated = s.LastUpdated
		}
		if s.Charts != nil {
			charts = append(charts, *s.Charts)
		}
	}
	total.TrialConversionRate = rateSum / float64(len(snapshots))

	if len(charts) > 0 {
		merged := MergeChartSets(charts)
		total.Charts = &merged
	}
	return &total
}

// MergeSeries sums series by date key. The output lists dates in the order
// they are first seen across the inputs. Absent values count as 0; a date
// whose every contribution is absent stays absent. A single series is
// returned unchanged and no input yields nil.
func MergeSeries(series ...[]domain.ChartPoint) []domain.ChartPoint {
	switch len(series) {
	case 0:
		return nil
	case 1:
		return series[0]
	}

	index := make(map[string]int)
	var out []domain.ChartPoint
	for _, s := range series {
		for _, p := range s {
			i, ok := index[p.Date]
			if !ok {
				i = len(out)
				index[p.Date] = i
				out = append(out, domain.ChartPoint{Date: p.Date})
			}
			if p.Value == nil {
				continue
			}
			sum := *p.Value
			if out[i].Value != nil {
				sum += *out[i].Value
			}
			out[i].Value = &sum
		}
	}
	return out
}

// MergeChartSets merges each series across sets.
func MergeChartSets(sets []domain.ChartSet) domain.ChartSet {
	pick := func(get func(domain.ChartSet) []domain.ChartPoint) []domain.ChartPoint {
		series := make([][]domain.ChartPoint, len(sets))
		for i, s := range sets {
			series[i] = get(s)
		}
		return MergeSeries(series...)
	}
	return domain.ChartSet{
		MRR:             pick(func(s domain.ChartSet) []domain.ChartPoint { return s.MRR }),
		Subscribers:     pick(func(s domain.ChartSet) []domain.ChartPoint { return s.Subscribers }),
		Revenue:         pick(func(s domain.ChartSet) []domain.ChartPoint { return s.Revenue }),
		TrialConversion: pick(func(s domain.ChartSet) []domain.ChartPoint { return s.TrialConversion }),
	}
}

// MergeReportChartSets merges each series, movement included, across sets.
func MergeReportChartSets(sets []domain.ReportChartSet) domain.ReportChartSet {
	base := make([]domain.ChartSet, len(sets))
	movement := make([][]domain.ChartPoint, len(sets))
	for i, s := range sets {
		base[i] = s.ChartSet
		movement[i] = s.Movement
	}
	return domain.ReportChartSet{
		ChartSet: MergeChartSets(base),
		Movement: MergeSeries(movement...),
	}
}

// ChurnEstimate returns churn in percent over the movement window: the
// summed magnitude of the negative movement values divided by the first
// subscriber count. It reports false when movement is empty or the first
// subscriber count is not positive.
func ChurnEstimate(movement, subscribers []domain.ChartPoint) (float64, bool) {
	if len(movement) == 0 || len(subscribers) == 0 {
		return 0, false
	}
	base := subscribers[0].ValueOrZero()
	if base <= 0 {
		return 0, false
	}

	var churned float64
	for _, p := range movement {
		if v := p.ValueOrZero(); v < 0 {
			churned += -v
		}
	}
	return churned / base * 100, true
}
