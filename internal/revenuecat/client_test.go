package revenuecat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/pulse/internal/config"
	"github.com/ignite/pulse/internal/pkg/apierr"
	"github.com/ignite/pulse/internal/pkg/logger"
)

var fixedNow = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

var testCreds = Credentials{APIKey: "sk_test_key", ProjectID: "proj1"}

func newTestClient(server *httptest.Server) *Client {
	return &Client{
		baseURL:    server.URL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		chartDays:  30,
		log:        logger.Nop,
		now:        func() time.Time { return fixedNow },
	}
}

// requestLog records every path the fake API served.
type requestLog struct {
	mu    sync.Mutex
	paths []string
}

func (l *requestLog) add(r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, r.URL.Path)
}

func (l *requestLog) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range l.paths {
		if strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

const overviewBody = `{"object":"overview_metrics","metrics":[
	{"id":"mrr","value":1250.5},
	{"id":"active_subscriptions","value":340},
	{"id":"active_trials","value":12},
	{"id":"new_customers","value":7}
]}`

// dashboardAPI serves an overview and charts. Same-day chart requests
// (start_date == end_date) get the "today" values.
func dashboardAPI(t *testing.T, log *requestLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		assert.Equal(t, "Bearer sk_test_key", r.Header.Get("Authorization"))
		q := r.URL.Query()

		switch {
		case r.URL.Path == "/projects/proj1/metrics/overview":
			assert.Equal(t, "EUR", q.Get("currency"))
			fmt.Fprint(w, overviewBody)
			return
		case strings.HasPrefix(r.URL.Path, "/projects/proj1/charts/"):
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}

		assert.Equal(t, "0", q.Get("resolution"))
		assert.Equal(t, "EUR", q.Get("currency"))
		assert.Equal(t, "2024-03-10", q.Get("end_date"))
		today := q.Get("start_date") == q.Get("end_date")
		chart := strings.TrimPrefix(r.URL.Path, "/projects/proj1/charts/")

		switch {
		case chart == ChartActivesNew && today:
			fmt.Fprint(w, `{"values":[{"date":"2024-03-10","value":4.4}]}`)
		case chart == ChartTrialConversion && today:
			fmt.Fprint(w, `{"values":[{"date":"2024-03-10","value":2}]}`)
		case chart == ChartMRR:
			assert.Equal(t, "2024-02-10", q.Get("start_date"), "30 days including today")
			fmt.Fprint(w, `{"start_date":"2024-03-08","values":[[100],[110],[125]]}`)
		case chart == ChartTrialConversion:
			fmt.Fprint(w, `{"values":[{"date":"2024-03-09","value":20},{"date":"2024-03-10","value":30}]}`)
		case chart == ChartActives:
			fmt.Fprint(w, `{"values":[{"date":"2024-03-10","value":340}]}`)
		case chart == ChartRevenue:
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"message":"boom"}`)
		default:
			fmt.Fprint(w, `{"values":[]}`)
		}
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(config.RevenueCatConfig{BaseURL: "https://api.revenuecat.com/v2", TimeoutSeconds: 30}, nil)

	assert.Equal(t, "https://api.revenuecat.com/v2", client.baseURL)
	assert.Equal(t, 30, client.chartDays)
	assert.NotNil(t, client.log)
}

func TestFetchDashboardData(t *testing.T) {
	log := &requestLog{}
	server := httptest.NewServer(dashboardAPI(t, log))
	defer server.Close()

	data, err := newTestClient(server).FetchDashboardData(context.Background(), testCreds, "EUR")
	require.NoError(t, err)

	assert.Equal(t, 1250.5, data.MRR)
	assert.Equal(t, 340, data.ActiveSubscriptions)
	assert.Equal(t, 12, data.ActiveTrials)
	assert.Equal(t, 7, data.NewCustomersToday)
	assert.Equal(t, 4, data.NewSubscriptionsToday)
	assert.Equal(t, 2, data.TrialsConvertingToday)
	assert.Equal(t, 15.0, data.MRRChange24h)
	assert.Equal(t, 25.0, data.TrialConversionRate)
	assert.Equal(t, 3, data.TrialPrediction)
	assert.Equal(t, "EUR", data.Currency)
	assert.Equal(t, fixedNow, data.LastUpdated)
	assert.Equal(t, 7, data.NewToday())

	require.NotNil(t, data.Charts)
	require.Len(t, data.Charts.MRR, 3)
	assert.Equal(t, "2024-03-08", data.Charts.MRR[0].Date)
	assert.Len(t, data.Charts.Subscribers, 1)
	assert.Empty(t, data.Charts.Revenue, "a failed chart leaves its series empty")

	assert.Equal(t, 1, log.count("/projects/proj1/metrics/overview"))
	assert.Equal(t, 6, log.count("/projects/proj1/charts/"))
}

func TestFetchDashboardDataOverviewFailureStopsEarly(t *testing.T) {
	log := &requestLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server).FetchDashboardData(context.Background(), testCreds, "USD")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrUnauthorized))
	assert.Equal(t, 0, log.count("/projects/proj1/charts/"))
}

func TestFetchDashboardDataNotConfigured(t *testing.T) {
	log := &requestLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
	}))
	defer server.Close()

	client := newTestClient(server)
	for _, creds := range []Credentials{{}, {APIKey: "k"}, {ProjectID: "p"}, {APIKey: " ", ProjectID: "p"}} {
		_, err := client.FetchDashboardData(context.Background(), creds, "USD")
		assert.True(t, errors.Is(err, apierr.ErrNotConfigured))
	}
	assert.Equal(t, 0, log.count("/"))
}

func TestFetchOverviewStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   error
	}{
		{http.StatusUnauthorized, apierr.ErrUnauthorized},
		{http.StatusForbidden, apierr.ErrForbidden},
		{http.StatusNotFound, apierr.ErrNotFound},
		{http.StatusTooManyRequests, apierr.ErrRateLimited},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := newTestClient(server).FetchOverview(context.Background(), testCreds, "USD")
		assert.True(t, errors.Is(err, tt.kind), "status %d: %v", tt.status, err)
		server.Close()
	}
}

func TestFetchOverviewServerErrorCarriesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, strings.Repeat("e", 1000))
	}))
	defer server.Close()

	_, err := newTestClient(server).FetchOverview(context.Background(), testCreds, "USD")
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierr.ErrServer, apiErr.Kind)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Len(t, apiErr.Body, apierr.MaxBodyExcerpt)
}

func TestFetchOverviewDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>maintenance</html>`)
	}))
	defer server.Close()

	_, err := newTestClient(server).FetchOverview(context.Background(), testCreds, "USD")
	assert.True(t, errors.Is(err, apierr.ErrDecode))
}

func TestFetchOverviewNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client := newTestClient(server)
	server.Close()

	_, err := client.FetchOverview(context.Background(), testCreds, "USD")
	assert.True(t, errors.Is(err, apierr.ErrNetwork))
}

func TestTestConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/projects/missing/metrics/overview" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, overviewBody)
	}))
	defer server.Close()

	client := newTestClient(server)
	assert.NoError(t, client.TestConnection(context.Background(), testCreds))

	err := client.TestConnection(context.Background(), Credentials{APIKey: "k", ProjectID: "missing"})
	assert.True(t, errors.Is(err, apierr.ErrNotFound))
	assert.Contains(t, err.Error(), "missing")
}

func TestFetchTodayChartValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2024-03-10", q.Get("start_date"))
		assert.Equal(t, "2024-03-10", q.Get("end_date"))
		switch strings.TrimPrefix(r.URL.Path, "/projects/proj1/charts/") {
		case "empty":
			fmt.Fprint(w, `{"values":[]}`)
		case "null":
			fmt.Fprint(w, `{"values":[{"date":"2024-03-10","value":null}]}`)
		case "broken":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "summary":
			fmt.Fprint(w, `{"values":[],"summary":[{"operation":"average","value":2},{"operation":"Total","value":"14"}]}`)
		case "summary-map":
			fmt.Fprint(w, `{"values":[],"summary":{"total":14}}`)
		default:
			fmt.Fprint(w, `{"values":[{"date":"2024-03-10","value":9}]}`)
		}
	}))
	defer server.Close()

	client := newTestClient(server)
	ctx := context.Background()
	assert.Equal(t, 9.0, client.FetchTodayChartValue(ctx, "actives_new", testCreds, "USD"))
	assert.Equal(t, 0.0, client.FetchTodayChartValue(ctx, "empty", testCreds, "USD"))
	assert.Equal(t, 0.0, client.FetchTodayChartValue(ctx, "null", testCreds, "USD"))
	assert.Equal(t, 0.0, client.FetchTodayChartValue(ctx, "broken", testCreds, "USD"))
	assert.Equal(t, 14.0, client.FetchTodayChartValue(ctx, "summary", testCreds, "USD"))
	assert.Equal(t, 0.0, client.FetchTodayChartValue(ctx, "summary-map", testCreds, "USD"))
}

func TestFetchReportCharts(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chart := strings.TrimPrefix(r.URL.Path, "/projects/proj1/charts/")
		mu.Lock()
		seen[chart] = r.URL.Query().Get("start_date") + ".." + r.URL.Query().Get("end_date")
		mu.Unlock()
		fmt.Fprint(w, `{"values":[{"date":"2024-03-01","value":1}]}`)
	}))
	defer server.Close()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)
	set := newTestClient(server).FetchReportCharts(context.Background(), testCreds, "USD", start, end)

	assert.Len(t, set.MRR, 1)
	assert.Len(t, set.Subscribers, 1)
	assert.Len(t, set.Revenue, 1)
	assert.Len(t, set.TrialConversion, 1)
	assert.Len(t, set.Movement, 1)
	assert.Len(t, seen, 5)
	assert.Equal(t, "2024-03-01..2024-03-07", seen[ChartActivesMovement])
}

func TestLastDeltaAndMean(t *testing.T) {
	assert.Equal(t, 0.0, lastDelta(nil))
	assert.Equal(t, 0.0, mean(nil))
	assert.Equal(t, 0, count(-3.2))
	assert.Equal(t, 3, count(2.5))
}
