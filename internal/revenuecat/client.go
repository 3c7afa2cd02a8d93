// Package revenuecat fetches subscription metrics (overview and daily
// charts) for a project and assembles dashboard snapshots from them.
package revenuecat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/ignite/pulse/internal/config"
	"github.com/ignite/pulse/internal/decode"
	"github.com/ignite/pulse/internal/pkg/apierr"
	"github.com/ignite/pulse/internal/pkg/httpretry"
	"github.com/ignite/pulse/internal/pkg/logger"
)

const (
	service  = "revenuecat"
	category = "revenuecat"
)

// Client is a subscription metrics API client. It holds no per-project
// state; credentials travel with each call.
type Client struct {
	baseURL    string
	httpClient httpretry.HTTPDoer
	chartDays  int
	log        logger.Func
	now        func() time.Time
}

// NewClient creates a new subscription metrics client
func NewClient(cfg config.RevenueCatConfig, log logger.Func) *Client {
	if log == nil {
		log = logger.Nop
	}
	days := cfg.ChartDays
	if days <= 0 {
		days = 30
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 2),
		chartDays: days,
		log:       log,
		now:       time.Now,
	}
}

// SetHTTPClient replaces the transport, for tests and custom proxies.
func (c *Client) SetHTTPClient(doer httpretry.HTTPDoer) {
	c.httpClient = doer
}

// doRequest performs an authenticated GET against a project-scoped path.
func (c *Client) doRequest(ctx context.Context, creds Credentials, path string, params url.Values) ([]byte, error) {
	if !creds.Configured() {
		return nil, apierr.NotConfigured(service)
	}

	fullURL := c.baseURL + "/projects/" + url.PathEscape(creds.ProjectID) + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	(&oauth2.Token{AccessToken: creds.APIKey}).SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Network(service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Network(service, fmt.Errorf("reading response: %w", err))
	}

	if err := apierr.FromStatus(service, resp.StatusCode, body, "project "+creds.ProjectID); err != nil {
		return nil, err
	}
	return body, nil
}

// TestConnection verifies credentials by requesting the overview. Any
// response that decodes counts as success.
func (c *Client) TestConnection(ctx context.Context, creds Credentials) error {
	_, err := c.FetchOverview(ctx, creds, "USD")
	return err
}

// FetchOverview returns the decoded metrics overview. Transport, status
// and decode failures are returned as apierr errors.
func (c *Client) FetchOverview(ctx context.Context, creds Credentials, currency string) (decode.Overview, error) {
	body, err := c.doRequest(ctx, creds, "/metrics/overview", url.Values{"currency": {currency}})
	if err != nil {
		return decode.Overview{}, err
	}
	overview, err := decode.DecodeOverview(body)
	if err != nil {
		return decode.Overview{}, apierr.Decode(service, err)
	}
	return overview, nil
}

func (c *Client) today() time.Time {
	now := c.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
