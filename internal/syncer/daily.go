package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/mailpro-dashboard/internal/mailpro"
	"github.com/ignite/mailpro-dashboard/internal/notify"
	"github.com/ignite/mailpro-dashboard/internal/pkg/logger"
	"github.com/ignite/mailpro-dashboard/internal/report"
	"github.com/ignite/mailpro-dashboard/internal/store"
)

// Mailer sends the rendered report.
type Mailer interface {
	Send(ctx context.Context, msg notify.Email) (string, error)
}

// Archiver keeps a snapshot of the day's report.
type Archiver interface {
	Put(ctx context.Context, day time.Time, data any) (string, error)
}

// DailyOptions addresses the report email.
type DailyOptions struct {
	Recipient string
	FromEmail string
	FromName  string
}

// DailyJob builds the daily report from the mirrored store data and mails
// it. The mirror, not the live API, is the source of truth here.
type DailyJob struct {
	store      store.Store
	mailer     Mailer
	summarizer notify.Summarizer
	renderer   *notify.Renderer
	archive    Archiver
	opts       DailyOptions
	log        logger.Entry
}

// NewDailyJob wires a DailyJob. summarizer defaults to the template
// summarizer; a nil archive disables archiving.
func NewDailyJob(st store.Store, mailer Mailer, summarizer notify.Summarizer, renderer *notify.Renderer, archive Archiver, opts DailyOptions) *DailyJob {
	if summarizer == nil {
		summarizer = notify.TemplateSummarizer{}
	}
	return &DailyJob{
		store:      st,
		mailer:     mailer,
		summarizer: summarizer,
		renderer:   renderer,
		archive:    archive,
		opts:       opts,
		log:        logger.With("component", "daily-report"),
	}
}

// DailyOutcome describes one daily report run.
type DailyOutcome struct {
	RunID       string          `json:"runId"`
	Date        string          `json:"date"`
	Campaigns   int             `json:"campaigns"`
	Reports     int             `json:"reports"`
	Today       int             `json:"today"`
	Yesterday   int             `json:"yesterday"`
	Sent        bool            `json:"sent"`
	MessageID   string          `json:"messageId,omitempty"`
	ArchiveKey  string          `json:"archiveKey,omitempty"`
	NoCampaigns bool            `json:"noCampaigns,omitempty"`
	Segments    report.Segments `json:"-"`
	// Write is the outcome of persisting the generated reports.
	Write CollectionResult `json:"-"`
}

// Message is the human-readable summary of the run.
func (o *DailyOutcome) Message() string {
	switch {
	case o.NoCampaigns:
		return "No campaigns found; no report sent"
	case !o.Sent:
		return fmt.Sprintf("No campaign activity for %s or the day before; email not sent", o.Date)
	}
	msg := fmt.Sprintf("Daily report for %s sent: %d campaign(s) today, %d yesterday", o.Date, o.Today, o.Yesterday)
	if o.Write.Err != nil {
		msg += " (write failed: " + o.Write.Collection + ")"
	}
	return msg
}

// Details is the job-status payload for the run.
func (o *DailyOutcome) Details() map[string]any {
	d := map[string]any{
		"runId":     o.RunID,
		"message":   o.Message(),
		"date":      o.Date,
		"reports":   o.Reports,
		"today":     o.Today,
		"yesterday": o.Yesterday,
		"sent":      o.Sent,
	}
	if o.MessageID != "" {
		d["messageId"] = o.MessageID
	}
	if o.Write.Err != nil {
		d["writeErrors"] = map[string]any{o.Write.Collection: o.Write.Err.Error()}
	}
	return d
}

// Run builds and sends the report for the day containing now (UTC).
func (j *DailyJob) Run(ctx context.Context, now time.Time) (*DailyOutcome, error) {
	if j.opts.Recipient == "" {
		return nil, fmt.Errorf("report recipient is not configured")
	}
	out := &DailyOutcome{RunID: runID(ctx), Date: now.UTC().Format(report.DateLayout)}

	campaignDocs, err := j.store.List(ctx, store.RawCampaigns)
	if err != nil {
		return nil, fmt.Errorf("loading campaigns: %w", err)
	}
	campaigns := store.DecodeAll[mailpro.Campaign](campaignDocs)
	out.Campaigns = len(campaigns)
	if len(campaigns) == 0 {
		out.NoCampaigns = true
		return out, nil
	}

	statDocs, err := j.store.List(ctx, store.RawStats)
	if err != nil {
		return nil, fmt.Errorf("loading stats: %w", err)
	}
	stats := store.DecodeAll[mailpro.CampaignStats](statDocs)

	reports := report.GenerateDailyReport(campaigns, stats)
	seg := report.Segment(reports, now)
	out.Reports = len(reports)
	out.Segments = seg
	out.Today = len(seg.Today)
	out.Yesterday = len(seg.Yesterday)

	out.Write = persist(ctx, j.store, j.log, store.DailyReports, reports, now, report.DocumentID)

	if seg.Empty() {
		j.log.Info("no activity today or yesterday, not sending", "date", out.Date)
		return out, nil
	}

	summary, err := j.summarizer.Summarize(ctx, seg)
	if err != nil {
		j.log.Warn("summary failed, using template", "err", err)
		summary, _ = notify.TemplateSummarizer{}.Summarize(ctx, seg)
	}

	rendered, err := j.renderer.Render(seg, summary)
	if err != nil {
		return nil, err
	}

	messageID, err := j.mailer.Send(ctx, notify.Email{
		FromEmail: j.opts.FromEmail,
		FromName:  j.opts.FromName,
		To:        []string{j.opts.Recipient},
		Subject:   rendered.Subject,
		HTML:      rendered.HTML,
		Text:      rendered.Text,
		Tags:      map[string]string{"job": "dailyEmailReport"},
	})
	if err != nil {
		return nil, err
	}
	out.Sent = true
	out.MessageID = messageID

	if j.archive != nil {
		key, err := j.archive.Put(ctx, now, map[string]any{
			"runId":    out.RunID,
			"summary":  summary,
			"segments": seg,
			"totals": map[string]report.Summary{
				"today":     report.Totals(seg.Today),
				"yesterday": report.Totals(seg.Yesterday),
			},
		})
		if err != nil {
			j.log.Warn("report archive failed", "err", err)
		} else {
			out.ArchiveKey = key
		}
	}

	j.log.Info("daily report sent", "run", out.RunID, "recipient", j.opts.Recipient, "today", out.Today, "yesterday", out.Yesterday)
	return out, nil
}
