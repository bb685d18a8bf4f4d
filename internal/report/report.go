// Package report turns mirrored campaigns and their stats into per-campaign
// daily performance reports. Everything here is pure: the same inputs always
// produce the same reports, whether called from the dashboard API or the
// daily email job.
package report

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/ignite/mailpro-dashboard/internal/mailpro"
)

// DateLayout is the report date format (MM/DD/YYYY).
const DateLayout = "01/02/2006"

// upstream timestamp layouts, tried in order
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// DailyReport is the derived performance summary of one campaign.
type DailyReport struct {
	Date         string                 `json:"date"`
	CampaignUID  string                 `json:"campaign_uid"`
	CampaignName string                 `json:"campaign_name"`
	Subject      string                 `json:"subject"`
	FromName     string                 `json:"from_name"`
	Status       mailpro.CampaignStatus `json:"status"`
	TotalSent    int64                  `json:"total_sent"`
	Delivered    int64                  `json:"delivered"`
	UniqueOpens  int64                  `json:"unique_opens"`
	UniqueClicks int64                  `json:"unique_clicks"`
	Unsubscribes int64                  `json:"unsubscribes"`
	Bounces      int64                  `json:"bounces"`
	DeliveryRate float64                `json:"delivery_rate"`
	OpenRate     float64                `json:"open_rate"`
	ClickRate    float64                `json:"click_rate"`
}

// Summary aggregates a set of reports.
type Summary struct {
	Campaigns    int     `json:"campaigns"`
	TotalSent    int64   `json:"total_sent"`
	Delivered    int64   `json:"delivered"`
	UniqueOpens  int64   `json:"unique_opens"`
	UniqueClicks int64   `json:"unique_clicks"`
	Unsubscribes int64   `json:"unsubscribes"`
	Bounces      int64   `json:"bounces"`
	DeliveryRate float64 `json:"delivery_rate"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
}

// GenerateDailyReport joins campaigns with their stats. Only sent or
// processing campaigns that have stats and a parseable send (or creation)
// date produce a report; output follows campaign input order.
func GenerateDailyReport(campaigns []mailpro.Campaign, stats []mailpro.CampaignStats) []DailyReport {
	byCampaign := make(map[string]mailpro.CampaignStats, len(stats))
	for _, s := range stats {
		byCampaign[s.CampaignUID] = s
	}

	reports := make([]DailyReport, 0, len(campaigns))
	for _, c := range campaigns {
		if !c.Status.Reportable() {
			continue
		}
		s, ok := byCampaign[c.UID]
		if !ok {
			continue
		}
		day, ok := CampaignDate(c)
		if !ok {
			continue
		}

		sent := int64(s.ProcessedCount)
		delivered := int64(s.DeliverySuccessCount)
		opens := int64(s.UniqueOpensCount)
		clicks := int64(s.UniqueClicksCount)

		reports = append(reports, DailyReport{
			Date:         day.Format(DateLayout),
			CampaignUID:  c.UID,
			CampaignName: c.Name,
			Subject:      c.Subject,
			FromName:     c.FromName,
			Status:       c.Status,
			TotalSent:    sent,
			Delivered:    delivered,
			UniqueOpens:  opens,
			UniqueClicks: clicks,
			Unsubscribes: int64(s.UnsubscribesCount),
			Bounces:      int64(s.BouncesCount),
			DeliveryRate: Rate(delivered, sent),
			OpenRate:     Rate(opens, delivered),
			ClickRate:    Rate(clicks, delivered),
		})
	}
	return reports
}

// Totals sums a set of reports and recomputes the rates over the sums.
func Totals(reports []DailyReport) Summary {
	var s Summary
	for _, r := range reports {
		s.Campaigns++
		s.TotalSent += r.TotalSent
		s.Delivered += r.Delivered
		s.UniqueOpens += r.UniqueOpens
		s.UniqueClicks += r.UniqueClicks
		s.Unsubscribes += r.Unsubscribes
		s.Bounces += r.Bounces
	}
	s.DeliveryRate = Rate(s.Delivered, s.TotalSent)
	s.OpenRate = Rate(s.UniqueOpens, s.Delivered)
	s.ClickRate = Rate(s.UniqueClicks, s.Delivered)
	return s
}

// Rate returns part/whole as a percentage rounded to two decimals, or 0
// when whole is 0.
func Rate(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*100*100) / 100
}

// CampaignDate resolves the report day of a campaign: its send time, or its
// creation time when the send time is missing or unparseable. The result is
// midnight UTC.
func CampaignDate(c mailpro.Campaign) (time.Time, bool) {
	for _, raw := range []string{c.SendAt, c.DateAdded} {
		if t, ok := parseTimestamp(raw); ok {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "0000-00-00") {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// DocumentID is the dailyReports key: the ISO date plus a sanitized
// campaign name, e.g. "2024-06-15_spring-sale".
func DocumentID(r DailyReport) string {
	date := r.Date
	if t, err := time.Parse(DateLayout, r.Date); err == nil {
		date = t.Format("2006-01-02")
	}

	name := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(r.CampaignName), "-"), "-")
	if name == "" {
		name = strings.ToLower(r.CampaignUID)
	}
	if len(name) > 100 {
		name = strings.TrimRight(name[:100], "-")
	}
	return date + "_" + name
}
