package domain

import (
	"sort"
	"strings"
)

// OrganicSource replaces an empty media source.
const OrganicSource = "Organic"

// Funnel event names as they appear in attribution exports.
const (
	EventCompleteRegistration = "af_complete_registration"
	EventTutorialCompletion   = "af_tutorial_completion"
	EventStartTrial           = "af_start_trial"
	EventSubscribe            = "af_subscribe"
	EventPurchase             = "af_purchase"
)

// FunnelEvents lists the tracked in-app events in funnel order.
var FunnelEvents = []string{
	EventCompleteRegistration,
	EventTutorialCompletion,
	EventStartTrial,
	EventSubscribe,
	EventPurchase,
}

// FunnelCounts holds unique-user counts per funnel event.
type FunnelCounts struct {
	Registrations       int `json:"registrations"`
	TutorialCompletions int `json:"tutorial_completions"`
	TrialStarts         int `json:"trial_starts"`
	Subscriptions       int `json:"subscriptions"`
	Purchases           int `json:"purchases"`
}

// Set stores n under the named event. Unknown events are ignored.
func (f *FunnelCounts) Set(event string, n int) {
	switch event {
	case EventCompleteRegistration:
		f.Registrations = n
	case EventTutorialCompletion:
		f.TutorialCompletions = n
	case EventStartTrial:
		f.TrialStarts = n
	case EventSubscribe:
		f.Subscriptions = n
	case EventPurchase:
		f.Purchases = n
	}
}

func (f *FunnelCounts) add(o FunnelCounts) {
	f.Registrations += o.Registrations
	f.TutorialCompletions += o.TutorialCompletions
	f.TrialStarts += o.TrialStarts
	f.Subscriptions += o.Subscriptions
	f.Purchases += o.Purchases
}

// CampaignDayRow is one (date, media source, campaign) row of the
// attribution export.
type CampaignDayRow struct {
	Date        string       `json:"date"`
	MediaSource string       `json:"media_source"`
	Campaign    string       `json:"campaign"`
	Impressions int          `json:"impressions"`
	Clicks      int          `json:"clicks"`
	Installs    int          `json:"installs"`
	Cost        float64      `json:"cost"`
	Revenue     float64      `json:"revenue"`
	Funnel      FunnelCounts `json:"funnel"`
}

// CohortRow is one campaign of the cumulative cohort report. Retention
// values are fractions; nil means not reported.
type CohortRow struct {
	MediaSource  string   `json:"media_source,omitempty"`
	Campaign     string   `json:"campaign"`
	Users        int      `json:"users"`
	Cost         float64  `json:"cost"`
	Revenue      float64  `json:"revenue"`
	ROI          float64  `json:"roi"`
	RetentionD1  *float64 `json:"retention_d1,omitempty"`
	RetentionD7  *float64 `json:"retention_d7,omitempty"`
	RetentionD30 *float64 `json:"retention_d30,omitempty"`
}

// MarketingReport is the merged attribution data for a date range.
type MarketingReport struct {
	Rows    []CampaignDayRow `json:"rows"`
	Cohorts []CohortRow      `json:"cohorts"`
}

// Empty reports whether the report carries no data at all.
func (m MarketingReport) Empty() bool {
	return len(m.Rows) == 0 && len(m.Cohorts) == 0
}

// Merge appends other's rows and cohorts after m's.
func (m MarketingReport) Merge(other MarketingReport) MarketingReport {
	return MarketingReport{
		Rows:    append(append([]CampaignDayRow(nil), m.Rows...), other.Rows...),
		Cohorts: append(append([]CohortRow(nil), m.Cohorts...), other.Cohorts...),
	}
}

// TotalInstalls sums installs over all rows.
func (m MarketingReport) TotalInstalls() int {
	n := 0
	for _, r := range m.Rows {
		n += r.Installs
	}
	return n
}

// TotalCost sums cost over all rows.
func (m MarketingReport) TotalCost() float64 {
	var c float64
	for _, r := range m.Rows {
		c += r.Cost
	}
	return c
}

// TotalRevenue sums revenue over all rows.
func (m MarketingReport) TotalRevenue() float64 {
	var v float64
	for _, r := range m.Rows {
		v += r.Revenue
	}
	return v
}

// AverageCPI is total cost per install, 0 without installs.
func (m MarketingReport) AverageCPI() float64 {
	return safeDiv(m.TotalCost(), float64(m.TotalInstalls()))
}

// ROAS is revenue over cost in percent, 0 without cost.
func (m MarketingReport) ROAS() float64 {
	return safeDiv(m.TotalRevenue(), m.TotalCost()) * 100
}

// FunnelTotals sums the funnel counts over all rows.
func (m MarketingReport) FunnelTotals() FunnelCounts {
	var f FunnelCounts
	for _, r := range m.Rows {
		f.add(r.Funnel)
	}
	return f
}

// FunnelRates are conversion percentages derived from the funnel totals.
type FunnelRates struct {
	Registration       float64 `json:"registration"`        // registrations / installs
	TutorialCompletion float64 `json:"tutorial_completion"` // tutorial completions / installs
	TrialStart         float64 `json:"trial_start"`         // trial starts / installs
	TrialToPaid        float64 `json:"trial_to_paid"`       // subscriptions / trial starts
	Purchase           float64 `json:"purchase"`            // purchases / installs
}

// Funnel computes the funnel rates. Every rate is 0 when its denominator is 0.
func (m MarketingReport) Funnel() FunnelRates {
	f := m.FunnelTotals()
	installs := float64(m.TotalInstalls())
	return FunnelRates{
		Registration:       safeDiv(float64(f.Registrations), installs) * 100,
		TutorialCompletion: safeDiv(float64(f.TutorialCompletions), installs) * 100,
		TrialStart:         safeDiv(float64(f.TrialStarts), installs) * 100,
		TrialToPaid:        safeDiv(float64(f.Subscriptions), float64(f.TrialStarts)) * 100,
		Purchase:           safeDiv(float64(f.Purchases), installs) * 100,
	}
}

// CampaignSummary is a campaign's totals across the whole date range.
type CampaignSummary struct {
	MediaSource string  `json:"media_source"`
	Campaign    string  `json:"campaign"`
	Installs    int     `json:"installs"`
	Cost        float64 `json:"cost"`
	Revenue     float64 `json:"revenue"`
	Trials      int     `json:"trials"`
}

// CPI is cost per install, 0 without installs.
func (c CampaignSummary) CPI() float64 {
	return safeDiv(c.Cost, float64(c.Installs))
}

// ROAS is revenue over cost in percent, 0 without cost.
func (c CampaignSummary) ROAS() float64 {
	return safeDiv(c.Revenue, c.Cost) * 100
}

// TopCampaigns rolls rows up by (media source, campaign) and returns the
// n campaigns with the most installs. Ties keep first-seen order. n <= 0
// returns every campaign.
func (m MarketingReport) TopCampaigns(n int) []CampaignSummary {
	index := make(map[string]int)
	var out []CampaignSummary
	for _, r := range m.Rows {
		source := r.MediaSource
		if strings.TrimSpace(source) == "" {
			source = OrganicSource
		}
		key := source + "\x00" + r.Campaign
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, CampaignSummary{MediaSource: source, Campaign: r.Campaign})
		}
		out[i].Installs += r.Installs
		out[i].Cost += r.Cost
		out[i].Revenue += r.Revenue
		out[i].Trials += r.Funnel.TrialStarts
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Installs > out[b].Installs })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
