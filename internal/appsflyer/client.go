// Package appsflyer fetches attribution data: the daily partners export
// (CSV) and cumulative cohort KPIs (JSON) per app.
package appsflyer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ignite/pulse/internal/config"
	"github.com/ignite/pulse/internal/decode"
	"github.com/ignite/pulse/internal/domain"
	"github.com/ignite/pulse/internal/pkg/apierr"
	"github.com/ignite/pulse/internal/pkg/httpretry"
	"github.com/ignite/pulse/internal/pkg/logger"
)

const (
	service  = "appsflyer"
	category = "appsflyer"
)

// Client is an attribution API client. Tokens travel with each call.
type Client struct {
	baseURL    string
	httpClient httpretry.HTTPDoer
	limiter    *rate.Limiter
	log        logger.Func
	now        func() time.Time
}

// NewClient creates a new attribution API client
func NewClient(cfg config.AppsFlyerConfig, log logger.Func) *Client {
	if log == nil {
		log = logger.Nop
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 20
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 2),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
		log:     log,
		now:     time.Now,
	}
}

// SetHTTPClient replaces the transport, for tests and custom proxies.
func (c *Client) SetHTTPClient(doer httpretry.HTTPDoer) {
	c.httpClient = doer
}

// doRequest sends an authenticated request and returns the status and
// body. Only transport failures are errors; status handling is left to callers.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, payload interface{}, token, accept string) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, apierr.Network(service, err)
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	(&oauth2.Token{AccessToken: token}).SetAuthHeader(req)
	req.Header.Set("Accept", accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, apierr.Network(service, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, apierr.Network(service, fmt.Errorf("reading response: %w", err))
	}
	return resp.StatusCode, data, nil
}

func (c *Client) fetchCSV(ctx context.Context, appID, token, currency string, start, end time.Time) (int, []byte, error) {
	params := url.Values{}
	params.Set("from", decode.DateKey(start))
	params.Set("to", decode.DateKey(end))
	params.Set("currency", currency)
	params.Set("timezone", "UTC")
	path := "/api/agg-data/export/app/" + url.PathEscape(appID) + "/partners_by_date_report/v5"
	return c.doRequest(ctx, http.MethodGet, path, params, nil, token, "text/csv")
}

// TestConnection requests the last three days of the export for appID.
// It never fails; the outcome is described by the result.
func (c *Client) TestConnection(ctx context.Context, appID, token string) ConnectionResult {
	token = NormalizeToken(token)
	today := c.today()

	status, body, err := c.fetchCSV(ctx, appID, token, "USD", today.AddDate(0, 0, -2), today)
	if err != nil {
		return ConnectionResult{Status: StatusNetworkError, Detail: err.Error()}
	}
	switch status {
	case http.StatusOK:
		return ConnectionResult{Status: StatusSuccess, RowCount: decode.CountCSVRows(body)}
	case http.StatusUnauthorized, http.StatusForbidden:
		return ConnectionResult{Status: StatusAuthError, StatusCode: status}
	case http.StatusNotFound:
		return ConnectionResult{Status: StatusNotFound, AppID: appID, StatusCode: status}
	}
	return ConnectionResult{Status: StatusUnknown, StatusCode: status, BodyPrefix: apierr.Excerpt(body)}
}

// FetchMarketingData fetches the export and cohorts for every app id
// concurrently and merges them in app id order. A failed fetch only
// leaves its part empty; the only error is a missing token.
func (c *Client) FetchMarketingData(ctx context.Context, appIDs []string, token, currency string, start, end time.Time) (domain.MarketingReport, error) {
	var ids []string
	for _, id := range appIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return domain.MarketingReport{}, nil
	}

	token = NormalizeToken(token)
	if token == "" {
		return domain.MarketingReport{}, apierr.NotConfigured(service)
	}

	rows := make([][]domain.CampaignDayRow, len(ids))
	cohorts := make([][]domain.CohortRow, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		i, id := i, id
		wg.Add(2)
		go func() {
			defer wg.Done()
			rows[i] = c.fetchCampaignRows(ctx, id, token, currency, start, end)
		}()
		go func() {
			defer wg.Done()
			cohorts[i] = c.fetchCohorts(ctx, id, token, currency, start, end)
		}()
	}
	wg.Wait()

	var report domain.MarketingReport
	for i := range ids {
		report.Rows = append(report.Rows, rows[i]...)
		report.Cohorts = append(report.Cohorts, cohorts[i]...)
	}
	return report, nil
}

func (c *Client) fetchCampaignRows(ctx context.Context, appID, token, currency string, start, end time.Time) []domain.CampaignDayRow {
	status, body, err := c.fetchCSV(ctx, appID, token, currency, start, end)
	if err == nil {
		err = apierr.FromStatus(service, status, body, "app "+appID)
	}
	if err != nil {
		c.log(fmt.Sprintf("fetching export for %s: %v", appID, err), logger.ERROR, category)
		return nil
	}
	return decode.DecodeCampaignCSV(body, c.log)
}

func (c *Client) fetchCohorts(ctx context.Context, appID, token, currency string, start, end time.Time) []domain.CohortRow {
	path := "/api/cohorts/v1/data/app/" + url.PathEscape(appID)
	payload := newCohortRequest(decode.DateKey(start), decode.DateKey(end), currency)

	status, body, err := c.doRequest(ctx, http.MethodPost, path, nil, payload, token, "application/json")
	if err != nil {
		c.log(fmt.Sprintf("fetching cohorts for %s: %v", appID, err), logger.ERROR, category)
		return nil
	}
	switch {
	case status == http.StatusNotFound:
		c.log(fmt.Sprintf("cohort data not available for %s", appID), logger.WARN, category)
		return nil
	case status != http.StatusOK:
		c.log(fmt.Sprintf("fetching cohorts for %s: %v", appID, apierr.FromStatus(service, status, body, "app "+appID)), logger.ERROR, category)
		return nil
	}
	return decode.DecodeCohorts(body, c.log)
}

func (c *Client) today() time.Time {
	now := c.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
