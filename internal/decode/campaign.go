package decode

import (
	"fmt"
	"math"
	"strings"

	"github.com/ignite/pulse/internal/domain"
	"github.com/ignite/pulse/internal/pkg/logger"
)

// Header candidates for the partners-by-date export, most specific first.
var (
	dateHeaders        = []string{"date"}
	mediaSourceHeaders = []string{"media source", "media_source", "pid"}
	campaignHeaders    = []string{"campaign", "campaign (c)", "campaign name"}
	impressionHeaders  = []string{"impressions"}
	clickHeaders       = []string{"clicks"}
	installHeaders     = []string{"installs"}
	costHeaders        = []string{"total cost", "cost"}
	revenueHeaders     = []string{"total revenue", "revenue"}
)

type campaignColumns struct {
	date, mediaSource, campaign   int
	impressions, clicks, installs int
	cost, revenue                 int
	funnel                        map[string]int
}

func mapCampaignColumns(header []string) campaignColumns {
	cols := campaignColumns{
		date:        MatchColumn(header, dateHeaders...),
		mediaSource: MatchColumn(header, mediaSourceHeaders...),
		campaign:    MatchColumn(header, campaignHeaders...),
		impressions: MatchColumn(header, impressionHeaders...),
		clicks:      MatchColumn(header, clickHeaders...),
		installs:    MatchColumn(header, installHeaders...),
		cost:        MatchColumn(header, costHeaders...),
		revenue:     MatchColumn(header, revenueHeaders...),
		funnel:      make(map[string]int, len(domain.FunnelEvents)),
	}
	for _, event := range domain.FunnelEvents {
		if i := MatchColumnAll(header, event, "unique users"); i >= 0 {
			cols.funnel[event] = i
		}
	}
	return cols
}

// DecodeCampaignCSV parses the partners-by-date CSV export. A row is kept
// when its media source is non-empty or its installs are non-zero; an empty
// media source on a kept row becomes "Organic".
func DecodeCampaignCSV(body []byte, log logger.Func) []domain.CampaignDayRow {
	lines := splitLines(string(body))
	if len(lines) == 0 {
		log("attribution export is empty", logger.WARN, category)
		return nil
	}

	header := SplitCSVLine(lines[0])
	cols := mapCampaignColumns(header)
	if cols.installs < 0 && cols.mediaSource < 0 {
		log(fmt.Sprintf("attribution export has no media source or installs column: %q", lines[0]), logger.WARN, category)
	}

	var rows []domain.CampaignDayRow
	for _, line := range lines[1:] {
		fields := SplitCSVLine(line)
		row := domain.CampaignDayRow{
			Date:        field(fields, cols.date),
			MediaSource: field(fields, cols.mediaSource),
			Campaign:    field(fields, cols.campaign),
			Impressions: intField(fields, cols.impressions),
			Clicks:      intField(fields, cols.clicks),
			Installs:    intField(fields, cols.installs),
			Cost:        floatField(fields, cols.cost),
			Revenue:     floatField(fields, cols.revenue),
		}
		if row.MediaSource == "" && row.Installs == 0 {
			continue
		}
		if row.MediaSource == "" {
			row.MediaSource = domain.OrganicSource
		}
		for event, i := range cols.funnel {
			row.Funnel.Set(event, intField(fields, i))
		}
		rows = append(rows, row)
	}
	return rows
}

// CountCSVRows returns the number of data lines after the header.
func CountCSVRows(body []byte) int {
	lines := splitLines(string(body))
	if len(lines) <= 1 {
		return 0
	}
	return len(lines) - 1
}

func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func floatField(fields []string, i int) float64 {
	v, _ := ParseNumber(field(fields, i))
	return v
}

func intField(fields []string, i int) int {
	return int(math.Round(floatField(fields, i)))
}
