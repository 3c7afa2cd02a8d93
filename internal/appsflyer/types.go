package appsflyer

import (
	"fmt"
	"strings"
)

// ConnectionStatus is the outcome class of a connection test.
type ConnectionStatus string

const (
	StatusSuccess      ConnectionStatus = "success"
	StatusAuthError    ConnectionStatus = "auth_error"
	StatusNotFound     ConnectionStatus = "not_found"
	StatusNetworkError ConnectionStatus = "network_error"
	StatusUnknown      ConnectionStatus = "unknown"
)

// ConnectionResult describes a connection test. RowCount is set on
// success, AppID on not-found, StatusCode and BodyPrefix on unknown, and
// Detail on network errors.
type ConnectionResult struct {
	Status     ConnectionStatus `json:"status"`
	RowCount   int              `json:"row_count,omitempty"`
	AppID      string           `json:"app_id,omitempty"`
	StatusCode int              `json:"status_code,omitempty"`
	BodyPrefix string           `json:"body_prefix,omitempty"`
	Detail     string           `json:"detail,omitempty"`
}

// OK reports whether the test succeeded.
func (r ConnectionResult) OK() bool {
	return r.Status == StatusSuccess
}

// Message is a user-facing description of the result.
func (r ConnectionResult) Message() string {
	switch r.Status {
	case StatusSuccess:
		return fmt.Sprintf("Connected: %d rows in the last 3 days", r.RowCount)
	case StatusAuthError:
		return "Authentication failed: check the API token"
	case StatusNotFound:
		return fmt.Sprintf("App %s not found: check the app id", r.AppID)
	case StatusNetworkError:
		return "Network error: " + r.Detail
	}
	return fmt.Sprintf("Unexpected response (status %d): %s", r.StatusCode, r.BodyPrefix)
}

// NormalizeToken trims whitespace and a leading "Bearer " (any case) so
// pasted header values work as tokens.
func NormalizeToken(token string) string {
	token = strings.TrimSpace(token)
	if strings.EqualFold(token, "bearer") {
		return ""
	}
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

// cohortRequest is the body of the cohort data request.
type cohortRequest struct {
	CohortType    string   `json:"cohort_type"`
	MinCohortSize int      `json:"min_cohort_size"`
	PartialData   bool     `json:"partial_data"`
	From          string   `json:"from"`
	To            string   `json:"to"`
	Groupings     []string `json:"groupings"`
	KPIs          []string `json:"kpis"`
	Granularity   string   `json:"granularity"`
	Currency      string   `json:"preferred_currency,omitempty"`
}

func newCohortRequest(from, to, currency string) cohortRequest {
	return cohortRequest{
		CohortType:    "user_acquisition",
		MinCohortSize: 1,
		From:          from,
		To:            to,
		Groupings:     []string{"media_source", "campaign"},
		KPIs:          []string{"users", "cost", "revenue", "roi", "retention"},
		Granularity:   "cumulative",
		Currency:      currency,
	}
}
