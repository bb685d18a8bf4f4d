package notify

import (
	"fmt"
	"strconv"

	"github.com/osteele/liquid"

	"github.com/ignite/mailpro-dashboard/internal/report"
)

const reportHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
<h2>Campaign report for {{ today_date }}</h2>
<p>{{ summary | escape | newline_to_br }}</p>
{% for day in days %}
<h3>{{ day.label }} ({{ day.date }})</h3>
{% if day.count == 0 %}
<p>No campaigns sent.</p>
{% else %}
<table cellpadding="6" cellspacing="0" border="1" style="border-collapse: collapse;">
<tr><th>Campaign</th><th>Subject</th><th>Sent</th><th>Delivered</th><th>Opens</th><th>Clicks</th><th>Unsubs</th><th>Bounces</th><th>Delivery</th><th>Open</th><th>Click</th></tr>
{% for r in day.reports %}<tr><td>{{ r.campaign_name | escape }}</td><td>{{ r.subject | escape }}</td><td>{{ r.total_sent | number }}</td><td>{{ r.delivered | number }}</td><td>{{ r.unique_opens | number }}</td><td>{{ r.unique_clicks | number }}</td><td>{{ r.unsubscribes | number }}</td><td>{{ r.bounces | number }}</td><td>{{ r.delivery_rate | pct }}</td><td>{{ r.open_rate | pct }}</td><td>{{ r.click_rate | pct }}</td></tr>
{% endfor %}<tr><td colspan="2"><strong>Total</strong></td><td>{{ day.total.total_sent | number }}</td><td>{{ day.total.delivered | number }}</td><td>{{ day.total.unique_opens | number }}</td><td>{{ day.total.unique_clicks | number }}</td><td>{{ day.total.unsubscribes | number }}</td><td>{{ day.total.bounces | number }}</td><td>{{ day.total.delivery_rate | pct }}</td><td>{{ day.total.open_rate | pct }}</td><td>{{ day.total.click_rate | pct }}</td></tr>
</table>
{% endif %}
{% endfor %}
</body>
</html>`

const reportText = `Campaign report for {{ today_date }}

{{ summary }}
{% for day in days %}
{{ day.label }} ({{ day.date }})
{% if day.count == 0 %}- no campaigns sent
{% endif %}{% for r in day.reports %}- {{ r.campaign_name }}: {{ r.total_sent | number }} sent, {{ r.delivery_rate | pct }} delivered, {{ r.open_rate | pct }} opened, {{ r.click_rate | pct }} clicked
{% endfor %}{% endfor %}`

// Rendered is a report email body in both formats.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer renders report emails with Liquid templates.
type Renderer struct {
	html *liquid.Template
	text *liquid.Template
}

// NewRenderer compiles the report templates.
func NewRenderer() (*Renderer, error) {
	engine := liquid.NewEngine()
	registerReportFilters(engine)

	html, err := engine.ParseString(reportHTML)
	if err != nil {
		return nil, fmt.Errorf("parsing report html template: %w", err)
	}
	text, err := engine.ParseString(reportText)
	if err != nil {
		return nil, fmt.Errorf("parsing report text template: %w", err)
	}
	return &Renderer{html: html, text: text}, nil
}

func registerReportFilters(engine *liquid.Engine) {
	// Percentage: {{ 12.5 | pct }} -> 12.50%
	engine.RegisterFilter("pct", func(v float64) string {
		return strconv.FormatFloat(v, 'f', 2, 64) + "%"
	})

	// Thousands separators: {{ 1234567 | number }} -> 1,234,567
	engine.RegisterFilter("number", func(v int64) string {
		return groupThousands(v)
	})
}

func groupThousands(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := false
	if v < 0 {
		neg = true
		s = s[1:]
	}
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

// Render produces the email for seg with the given summary narrative.
func (r *Renderer) Render(seg report.Segments, summary string) (*Rendered, error) {
	bindings := map[string]any{
		"today_date": seg.TodayDate,
		"summary":    summary,
		"days": []map[string]any{
			dayBinding("Today", seg.TodayDate, seg.Today),
			dayBinding("Yesterday", seg.YesterdayDate, seg.Yesterday),
		},
	}

	html, err := r.html.RenderString(bindings)
	if err != nil {
		return nil, fmt.Errorf("rendering report html: %w", err)
	}
	text, err := r.text.RenderString(bindings)
	if err != nil {
		return nil, fmt.Errorf("rendering report text: %w", err)
	}

	return &Rendered{
		Subject: Subject(seg),
		HTML:    html,
		Text:    text,
	}, nil
}

// Subject is the report email subject line.
func Subject(seg report.Segments) string {
	return fmt.Sprintf("MailPro daily report %s: %d campaign(s) today, %d yesterday",
		seg.TodayDate, len(seg.Today), len(seg.Yesterday))
}

func dayBinding(label, date string, reports []report.DailyReport) map[string]any {
	rows := make([]map[string]any, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, reportBinding(r))
	}
	t := report.Totals(reports)
	return map[string]any{
		"label":   label,
		"date":    date,
		"reports": rows,
		"count":   len(rows),
		"total": map[string]any{
			"total_sent":    t.TotalSent,
			"delivered":     t.Delivered,
			"unique_opens":  t.UniqueOpens,
			"unique_clicks": t.UniqueClicks,
			"unsubscribes":  t.Unsubscribes,
			"bounces":       t.Bounces,
			"delivery_rate": t.DeliveryRate,
			"open_rate":     t.OpenRate,
			"click_rate":    t.ClickRate,
		},
	}
}

func reportBinding(r report.DailyReport) map[string]any {
	return map[string]any{
		"campaign_name": r.CampaignName,
		"subject":       r.Subject,
		"total_sent":    r.TotalSent,
		"delivered":     r.Delivered,
		"unique_opens":  r.UniqueOpens,
		"unique_clicks": r.UniqueClicks,
		"unsubscribes":  r.Unsubscribes,
		"bounces":       r.Bounces,
		"delivery_rate": r.DeliveryRate,
		"open_rate":     r.OpenRate,
		"click_rate":    r.ClickRate,
	}
}
