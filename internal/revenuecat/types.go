package revenuecat

import "strings"

// Chart names served by the charts endpoint.
const (
	ChartMRR             = "mrr"
	ChartActives         = "actives"
	ChartRevenue         = "revenue"
	ChartTrialConversion = "trial_conversion"
	ChartActivesNew      = "actives_new"
	ChartActivesMovement = "actives_movement"
)

// Credentials identify a project on the subscription API.
type Credentials struct {
	APIKey    string
	ProjectID string
}

// Configured reports whether both the key and the project id are set.
func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.ProjectID) != ""
}
