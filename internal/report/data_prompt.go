package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/ignite/pulse/internal/aggregate"
	"github.com/ignite/pulse/internal/decode"
	"github.com/ignite/pulse/internal/domain"
)

const (
	topCampaigns  = 5
	maxCohortRows = 5
	notAvailable  = "not available"
)

// PromptInput is everything the data prompt describes.
type PromptInput struct {
	Project  string
	Currency string
	Start    time.Time
	End      time.Time
	// Current is the latest snapshot; nil when none has been fetched.
	Current       *domain.DashboardData
	Charts        domain.ReportChartSet
	PreviousStart time.Time
	PreviousEnd   time.Time
	Previous      domain.ReportChartSet
	// Marketing is nil when attribution data was not requested.
	Marketing *domain.MarketingReport
}

// PreviousWindow returns the window of the same length that ends the day
// before start.
func PreviousWindow(start, end time.Time) (time.Time, time.Time) {
	days := int(end.Sub(start).Hours() / 24)
	prevEnd := start.AddDate(0, 0, -1)
	return prevEnd.AddDate(0, 0, -days), prevEnd
}

// BuildDataPrompt renders in as plain text. The output depends only on in.
func BuildDataPrompt(in PromptInput) string {
	var b strings.Builder
	days := int(in.End.Sub(in.Start).Hours()/24) + 1

	fmt.Fprintf(&b, "PROJECT: %s\n", in.Project)
	fmt.Fprintf(&b, "CURRENCY: %s\n", in.Currency)
	fmt.Fprintf(&b, "PERIOD: %s to %s (%d days)\n", decode.DateKey(in.Start), decode.DateKey(in.End), days)

	b.WriteString("\nCURRENT SNAPSHOT\n")
	if in.Current == nil {
		b.WriteString("No snapshot available.\n")
	} else {
		d := in.Current
		fmt.Fprintf(&b, "MRR: %s\n", money(d.MRR, in.Currency))
		fmt.Fprintf(&b, "MRR change (24h): %s\n", money(d.MRRChange24h, in.Currency))
		fmt.Fprintf(&b, "Active subscriptions: %d\n", d.ActiveSubscriptions)
		fmt.Fprintf(&b, "Active trials: %d\n", d.ActiveTrials)
		fmt.Fprintf(&b, "New today: %d\n", d.NewToday())
		fmt.Fprintf(&b, "Trials converting today: %d\n", d.TrialsConvertingToday)
		fmt.Fprintf(&b, "Predicted trial conversions: %d\n", d.TrialPrediction)
		fmt.Fprintf(&b, "Trial conversion rate: %.1f%%\n", d.TrialConversionRate)
	}
	if churn, ok := aggregate.ChurnEstimate(in.Charts.Movement, in.Charts.Subscribers); ok {
		fmt.Fprintf(&b, "Estimated churn over the period: %.1f%%\n", churn)
	}

	b.WriteString("\nCURRENT PERIOD\n")
	writeCharts(&b, in.Charts)

	if in.Previous.HasData() {
		fmt.Fprintf(&b, "\nPREVIOUS PERIOD (%s to %s)\n", decode.DateKey(in.PreviousStart), decode.DateKey(in.PreviousEnd))
		writeCharts(&b, in.Previous)
		if churn, ok := aggregate.ChurnEstimate(in.Previous.Movement, in.Previous.Subscribers); ok {
			fmt.Fprintf(&b, "Estimated churn over the previous period: %.1f%%\n", churn)
		}
	}

	if in.Marketing != nil {
		b.WriteString("\nMARKETING\n")
		writeMarketing(&b, *in.Marketing, in.Currency)
	}
	return b.String()
}

func writeCharts(b *strings.Builder, set domain.ReportChartSet) {
	writeSeries(b, "MRR", set.MRR)
	writeSeries(b, "Active subscribers", set.Subscribers)
	writeSeries(b, "Revenue", set.Revenue)
	writeSeries(b, "Trial conversion (%)", set.TrialConversion)
	writeSeries(b, "Subscriber movement", set.Movement)
}

func writeSeries(b *strings.Builder, name string, points []domain.ChartPoint) {
	if len(points) == 0 {
		fmt.Fprintf(b, "%s: no data\n", name)
		return
	}
	fmt.Fprintf(b, "%s:\n", name)
	for _, p := range points {
		fmt.Fprintf(b, "  %s: %s\n", p.Date, number(p.ValueOrZero()))
	}
}

func writeMarketing(b *strings.Builder, m domain.MarketingReport, currency string) {
	if m.Empty() {
		b.WriteString("No attribution data for this period.\n")
		return
	}

	cost := m.TotalCost()
	fmt.Fprintf(b, "Installs: %d\n", m.TotalInstalls())
	fmt.Fprintf(b, "Spend: %s\n", optionalMoney(cost, currency))
	fmt.Fprintf(b, "Attributed revenue: %s\n", money(m.TotalRevenue(), currency))
	if cost > 0 {
		fmt.Fprintf(b, "Average CPI: %s\n", money(m.AverageCPI(), currency))
		fmt.Fprintf(b, "ROAS: %.1f%%\n", m.ROAS())
	}

	totals := m.FunnelTotals()
	rates := m.Funnel()
	funnel := []struct {
		label string
		count int
		rate  float64
	}{
		{"Registration rate", totals.Registrations, rates.Registration},
		{"Tutorial completion rate", totals.TutorialCompletions, rates.TutorialCompletion},
		{"Trial start rate", totals.TrialStarts, rates.TrialStart},
		{"Trial to paid rate", totals.Subscriptions, rates.TrialToPaid},
		{"Purchase rate", totals.Purchases, rates.Purchase},
	}
	var wroteFunnel bool
	for _, f := range funnel {
		if f.count == 0 || f.rate == 0 {
			continue
		}
		if !wroteFunnel {
			b.WriteString("Funnel:\n")
			wroteFunnel = true
		}
		fmt.Fprintf(b, "  %s: %.1f%% (%d users)\n", f.label, f.rate, f.count)
	}

	if top := m.TopCampaigns(topCampaigns); len(top) > 0 {
		fmt.Fprintf(b, "Top %d campaigns by installs:\n", len(top))
		for i, c := range top {
			fmt.Fprintf(b, "  %d. %s / %s: installs %d, spend %s, revenue %s",
				i+1, c.MediaSource, campaignName(c.Campaign), c.Installs, optionalMoney(c.Cost, currency), money(c.Revenue, currency))
			if c.Cost > 0 {
				fmt.Fprintf(b, ", CPI %s, ROAS %.1f%%", money(c.CPI(), currency), c.ROAS())
			}
			if c.Trials > 0 {
				fmt.Fprintf(b, ", trials %d", c.Trials)
			}
			b.WriteString("\n")
		}
	}

	if len(m.Cohorts) > 0 {
		b.WriteString("Cohorts:\n")
		for i, c := range m.Cohorts {
			if i == maxCohortRows {
				break
			}
			fmt.Fprintf(b, "  %s: users %d, cost %s, revenue %s, ROI %.1f%%",
				campaignName(c.Campaign), c.Users, optionalMoney(c.Cost, currency), money(c.Revenue, currency), c.ROI)
			writeRetention(b, "D1", c.RetentionD1)
			writeRetention(b, "D7", c.RetentionD7)
			writeRetention(b, "D30", c.RetentionD30)
			b.WriteString("\n")
		}
	}
}

func writeRetention(b *strings.Builder, label string, v *float64) {
	if v != nil {
		fmt.Fprintf(b, ", %s retention %.1f%%", label, *v*100)
	}
}

func campaignName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "(no campaign)"
	}
	return name
}

func money(v float64, currency string) string {
	return fmt.Sprintf("%.2f %s", v, currency)
}

// optionalMoney reports zero spend as untracked.
func optionalMoney(v float64, currency string) string {
	if v == 0 {
		return notAvailable
	}
	return money(v, currency)
}

func number(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
