package revenuecat

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/ignite/pulse/internal/decode"
	"github.com/ignite/pulse/internal/domain"
	"github.com/ignite/pulse/internal/pkg/apierr"
)

// FetchDashboardData builds a project snapshot: the overview first (its
// failure fails the snapshot), then today's new-subscription and
// trial-conversion values, then the chart set. Chart failures only leave
// series empty.
func (c *Client) FetchDashboardData(ctx context.Context, creds Credentials, currency string) (domain.DashboardData, error) {
	if !creds.Configured() {
		return domain.DashboardData{}, apierr.NotConfigured(service)
	}

	overview, err := c.FetchOverview(ctx, creds, currency)
	if err != nil {
		return domain.DashboardData{}, fmt.Errorf("fetching overview: %w", err)
	}

	var (
		newSubs, converting float64
		wg                  sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		newSubs = c.FetchTodayChartValue(ctx, ChartActivesNew, creds, currency)
	}()
	go func() {
		defer wg.Done()
		converting = c.FetchTodayChartValue(ctx, ChartTrialConversion, creds, currency)
	}()
	wg.Wait()

	charts := c.FetchAllCharts(ctx, creds, currency, c.chartDays)

	data := domain.DashboardData{
		MRR:                   metric(overview, decode.MetricMRR),
		ActiveSubscriptions:   count(metric(overview, decode.MetricActiveSubscriptions)),
		ActiveTrials:          count(metric(overview, decode.MetricActiveTrials)),
		NewCustomersToday:     count(metric(overview, decode.MetricNewCustomers)),
		NewSubscriptionsToday: count(newSubs),
		TrialsConvertingToday: count(converting),
		MRRChange24h:          lastDelta(charts.MRR),
		TrialConversionRate:   mean(charts.TrialConversion),
		Currency:              currency,
		Charts:                &charts,
	}
	data.TrialPrediction = count(float64(data.ActiveTrials) * data.TrialConversionRate / 100)
	data.LastUpdated = c.now()

	return data, nil
}

func metric(o decode.Overview, id string) float64 {
	v, _ := o.Value(id)
	return v
}

// count rounds to the nearest whole number, clamped at zero.
func count(v float64) int {
	n := int(math.Round(v))
	if n < 0 {
		return 0
	}
	return n
}

// lastDelta is the last value minus the one before it, 0 with fewer than
// two points.
func lastDelta(series []domain.ChartPoint) float64 {
	if len(series) < 2 {
		return 0
	}
	return series[len(series)-1].ValueOrZero() - series[len(series)-2].ValueOrZero()
}

func mean(series []domain.ChartPoint) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, p := range series {
		sum += p.ValueOrZero()
	}
	return sum / float64(len(series))
}
