package revenuecat

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ignite/pulse/internal/decode"
	"github.com/ignite/pulse/internal/domain"
	"github.com/ignite/pulse/internal/pkg/logger"
)

// FetchChartSeriesForRange returns the daily series of chart between start
// and end. Failures are logged and yield an empty series.
func (c *Client) FetchChartSeriesForRange(ctx context.Context, chart string, start, end time.Time, creds Credentials, currency string) []domain.ChartPoint {
	return c.fetchChart(ctx, chart, start, end, creds, currency).Points
}

func (c *Client) fetchChart(ctx context.Context, chart string, start, end time.Time, creds Credentials, currency string) decode.Chart {
	params := url.Values{}
	params.Set("start_date", decode.DateKey(start))
	params.Set("end_date", decode.DateKey(end))
	params.Set("currency", currency)
	params.Set("resolution", "0")

	body, err := c.doRequest(ctx, creds, "/charts/"+url.PathEscape(chart), params)
	if err != nil {
		c.log(fmt.Sprintf("fetching chart %s: %v", chart, err), logger.WARN, category)
		return decode.Chart{}
	}
	return decode.DecodeChart(body, c.log)
}

// FetchChartSeries returns the chart for the last days days, today
// included, so the window holds days daily points.
func (c *Client) FetchChartSeries(ctx context.Context, chart string, days int, creds Credentials, currency string) []domain.ChartPoint {
	if days < 1 {
		days = 1
	}
	today := c.today()
	return c.FetchChartSeriesForRange(ctx, chart, today.AddDate(0, 0, -(days-1)), today, creds, currency)
}

// FetchTodayChartValue returns today's value of chart. When the series has
// no value it falls back to the "total" summary entry, then to 0.
func (c *Client) FetchTodayChartValue(ctx context.Context, chart string, creds Credentials, currency string) float64 {
	today := c.today()
	res := c.fetchChart(ctx, chart, today, today, creds, currency)
	for i := len(res.Points) - 1; i >= 0; i-- {
		if res.Points[i].Value != nil {
			return *res.Points[i].Value
		}
	}
	for _, s := range res.Summary {
		if strings.EqualFold(s.Operation, "total") {
			return s.Value.Value
		}
	}
	return 0
}

// FetchAllCharts fetches the four dashboard series concurrently.
func (c *Client) FetchAllCharts(ctx context.Context, creds Credentials, currency string, days int) domain.ChartSet {
	var (
		set domain.ChartSet
		wg  sync.WaitGroup
	)
	fetch := func(dst *[]domain.ChartPoint, chart string) {
		defer wg.Done()
		*dst = c.FetchChartSeries(ctx, chart, days, creds, currency)
	}

	wg.Add(4)
	go fetch(&set.MRR, ChartMRR)
	go fetch(&set.Subscribers, ChartActives)
	go fetch(&set.Revenue, ChartRevenue)
	go fetch(&set.TrialConversion, ChartTrialConversion)
	wg.Wait()

	return set
}

// FetchReportCharts fetches the four dashboard series plus subscriber
// movement for an explicit range, concurrently.
func (c *Client) FetchReportCharts(ctx context.Context, creds Credentials, currency string, start, end time.Time) domain.ReportChartSet {
	var (
		set domain.ReportChartSet
		wg  sync.WaitGroup
	)
	fetch := func(dst *[]domain.ChartPoint, chart string) {
		defer wg.Done()
		*dst = c.FetchChartSeriesForRange(ctx, chart, start, end, creds, currency)
	}

	wg.Add(5)
	go fetch(&set.MRR, ChartMRR)
	go fetch(&set.Subscribers, ChartActives)
	go fetch(&set.Revenue, ChartRevenue)
	go fetch(&set.TrialConversion, ChartTrialConversion)
	go fetch(&set.Movement, ChartActivesMovement)
	wg.Wait()

	return set
}
