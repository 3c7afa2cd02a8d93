package appsflyer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ignite/pulse/internal/config"
	"github.com/ignite/pulse/internal/pkg/apierr"
	"github.com/ignite/pulse/internal/pkg/logger"
)

var fixedNow = time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

type logRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (l *logRecorder) fn() logger.Func {
	return func(msg string, level logger.Level, _ string) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.entries = append(l.entries, level.String()+" "+msg)
	}
}

func (l *logRecorder) has(prefix string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}

func newTestClient(server *httptest.Server, log logger.Func) *Client {
	return &Client{
		baseURL:    server.URL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		log:        log,
		now:        func() time.Time { return fixedNow },
	}
}

func csvFor(source string, installs int) string {
	return "Date,Media Source (pid),Campaign (c),Installs,Total Cost,Total Revenue\n" +
		fmt.Sprintf("2024-03-01,%s,camp-%s,%d,10,20\n", source, source, installs)
}

func TestNewClient(t *testing.T) {
	client := NewClient(config.AppsFlyerConfig{BaseURL: "https://hq1.appsflyer.com/", TimeoutSeconds: 60, RequestsPerMinute: 10}, nil)

	assert.Equal(t, "https://hq1.appsflyer.com", client.baseURL)
	assert.Equal(t, 10, client.limiter.Burst())
}

func TestNormalizeToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":      "abc",
		"bearer abc":      "abc",
		"BEARER   abc  ":  "abc",
		"  abc  ":         "abc",
		"abc":             "abc",
		"Bearerabc":       "Bearerabc",
		"":                "",
		"Bearer ":         "",
		"eyJhbGciOi.x.y ": "eyJhbGciOi.x.y",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeToken(in), in)
	}
}

func TestTestConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "2024-03-08", q.Get("from"))
		assert.Equal(t, "2024-03-10", q.Get("to"))
		assert.Equal(t, "UTC", q.Get("timezone"))

		switch {
		case strings.Contains(r.URL.Path, "/app/good/"):
			fmt.Fprint(w, csvFor("Facebook", 3)+"2024-03-02,,,0,0,0\n")
		case strings.Contains(r.URL.Path, "/app/locked/"):
			w.WriteHeader(http.StatusForbidden)
		case strings.Contains(r.URL.Path, "/app/expired/"):
			w.WriteHeader(http.StatusUnauthorized)
		case strings.Contains(r.URL.Path, "/app/missing/"):
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusTeapot)
			fmt.Fprint(w, "short and stout")
		}
	}))
	defer server.Close()

	client := newTestClient(server, logger.Nop)
	ctx := context.Background()

	res := client.TestConnection(ctx, "good", "Bearer tok")
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 2, res.RowCount)
	assert.True(t, res.OK())

	assert.Equal(t, StatusAuthError, client.TestConnection(ctx, "locked", "tok").Status)
	assert.Equal(t, StatusAuthError, client.TestConnection(ctx, "expired", "tok").Status)

	res = client.TestConnection(ctx, "missing", "tok")
	assert.Equal(t, StatusNotFound, res.Status)
	assert.Equal(t, "missing", res.AppID)
	assert.Contains(t, res.Message(), "missing")

	res = client.TestConnection(ctx, "odd", "tok")
	assert.Equal(t, StatusUnknown, res.Status)
	assert.Equal(t, http.StatusTeapot, res.StatusCode)
	assert.Equal(t, "short and stout", res.BodyPrefix)
}

func TestTestConnectionNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client := newTestClient(server, logger.Nop)
	server.Close()

	res := client.TestConnection(context.Background(), "good", "tok")
	assert.Equal(t, StatusNetworkError, res.Status)
	assert.NotEmpty(t, res.Detail)
	assert.False(t, res.OK())
}

func TestFetchMarketingDataEmptyAppIDs(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	report, err := newTestClient(server, logger.Nop).FetchMarketingData(context.Background(), []string{" ", ""}, "", "USD", fixedNow, fixedNow)
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestFetchMarketingDataMissingToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer server.Close()

	_, err := newTestClient(server, logger.Nop).FetchMarketingData(context.Background(), []string{"app1"}, "Bearer  ", "USD", fixedNow, fixedNow)
	assert.True(t, errors.Is(err, apierr.ErrNotConfigured))
}

func TestFetchMarketingDataMergesInAppOrder(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		if r.Method == http.MethodPost {
			assert.True(t, strings.HasPrefix(r.URL.Path, "/api/cohorts/v1/data/app/"))
			var req cohortRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []string{"media_source", "campaign"}, req.Groupings)
			assert.Equal(t, []string{"users", "cost", "revenue", "roi", "retention"}, req.KPIs)
			assert.Equal(t, "cumulative", req.Granularity)
			assert.Equal(t, "2024-03-01", req.From)
			assert.Equal(t, "2024-03-07", req.To)

			app := strings.TrimPrefix(r.URL.Path, "/api/cohorts/v1/data/app/")
			fmt.Fprintf(w, `{"rows":[{"campaign":"cohort-%s","users":5}]}`, app)
			return
		}

		q := r.URL.Query()
		assert.Equal(t, "2024-03-01", q.Get("from"))
		assert.Equal(t, "2024-03-07", q.Get("to"))
		assert.Equal(t, "EUR", q.Get("currency"))
		switch {
		case strings.Contains(r.URL.Path, "/app/first/"):
			// slow first app must still come first
			time.Sleep(30 * time.Millisecond)
			fmt.Fprint(w, csvFor("first", 10))
		case strings.Contains(r.URL.Path, "/app/second/"):
			fmt.Fprint(w, csvFor("second", 20))
		}
	}))
	defer server.Close()

	report, err := newTestClient(server, logger.Nop).FetchMarketingData(context.Background(), []string{"first", "second"}, "tok", "EUR", start, end)
	require.NoError(t, err)

	require.Len(t, report.Rows, 2)
	assert.Equal(t, "first", report.Rows[0].MediaSource)
	assert.Equal(t, "second", report.Rows[1].MediaSource)
	require.Len(t, report.Cohorts, 2)
	assert.Equal(t, "cohort-first", report.Cohorts[0].Campaign)
	assert.Equal(t, "cohort-second", report.Cohorts[1].Campaign)
	assert.Equal(t, 30, report.TotalInstalls())
}

func TestFetchMarketingDataIsolatesFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if strings.HasSuffix(r.URL.Path, "/nocohort") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if strings.Contains(r.URL.Path, "/app/broken/") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, csvFor("ok", 4))
	}))
	defer server.Close()

	log := &logRecorder{}
	report, err := newTestClient(server, log.fn()).FetchMarketingData(context.Background(), []string{"nocohort", "broken"}, "tok", "USD", fixedNow, fixedNow)
	require.NoError(t, err)

	require.Len(t, report.Rows, 1)
	assert.Equal(t, "ok", report.Rows[0].MediaSource)
	assert.Empty(t, report.Cohorts)

	assert.True(t, log.has("WARN cohort data not available for nocohort"))
	assert.True(t, log.has("ERROR fetching cohorts for broken"))
	assert.True(t, log.has("ERROR fetching export for broken"))
}

func TestConnectionResultMessages(t *testing.T) {
	assert.Contains(t, ConnectionResult{Status: StatusSuccess, RowCount: 4}.Message(), "4 rows")
	assert.Contains(t, ConnectionResult{Status: StatusAuthError}.Message(), "token")
	assert.Contains(t, ConnectionResult{Status: StatusNetworkError, Detail: "dial"}.Message(), "dial")
	assert.Contains(t, ConnectionResult{Status: StatusUnknown, StatusCode: 418, BodyPrefix: "x"}.Message(), "418")
}
