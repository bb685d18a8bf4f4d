// Package syncer refreshes the local mirror of MailPro data and runs the
// store-backed daily report job.
package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailpro-dashboard/internal/mailpro"
	"github.com/ignite/mailpro-dashboard/internal/pkg/distlock"
	"github.com/ignite/mailpro-dashboard/internal/pkg/fanout"
	"github.com/ignite/mailpro-dashboard/internal/pkg/logger"
	"github.com/ignite/mailpro-dashboard/internal/report"
	"github.com/ignite/mailpro-dashboard/internal/store"
)

const syncLockKey = "sync"

type runIDKey struct{}

// WithRunID makes SyncAll and DailyJob.Run report runID instead of minting
// their own, so callers can tie status records to the run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run ID set by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

func runID(ctx context.Context) string {
	if id := RunIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.New().String()
}

// Source is the upstream the syncer mirrors. *mailpro.Client satisfies it.
type Source interface {
	ListCampaigns(ctx context.Context) ([]mailpro.Campaign, error)
	GetCampaignStats(ctx context.Context, uid string) *mailpro.CampaignStats
	GetLists(ctx context.Context) []mailpro.EmailList
	GetUnsubscribedSubscribers(ctx context.Context, listUID string) []mailpro.Subscriber
	GetSuppressionEmails(ctx context.Context, suppressionListUID string) []mailpro.SuppressedEmail
}

// Options tunes a Syncer.
type Options struct {
	MaxConcurrency     int
	SuppressionListUID string
	LockTTL            time.Duration
}

// Syncer mirrors campaigns, stats, lists and unsubscribers into the store.
type Syncer struct {
	source Source
	store  store.Store
	locks  distlock.Factory
	opts   Options
	now    func() time.Time
	log    logger.Entry
}

// New creates a Syncer. A nil lock factory disables run locking.
func New(source Source, st store.Store, locks distlock.Factory, opts Options) *Syncer {
	if locks == nil {
		locks = distlock.NewFactory(nil)
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = fanout.DefaultLimit
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &Syncer{
		source: source,
		store:  st,
		locks:  locks,
		opts:   opts,
		now:    time.Now,
		log:    logger.With("component", "syncer"),
	}
}

// SetClock overrides the time source used for document stamps.
func (s *Syncer) SetClock(now func() time.Time) { s.now = now }

// CollectionResult is the persistence outcome for one collection.
type CollectionResult struct {
	Collection string `json:"collection"`
	Count      int    `json:"count"`
	Err        error  `json:"-"`
}

// Result summarizes one sync run.
type Result struct {
	RunID         string             `json:"runId"`
	Campaigns     int                `json:"campaigns"`
	Stats         int                `json:"stats"`
	Lists         int                `json:"lists"`
	Unsubscribers int                `json:"unsubscribers"`
	Suppressions  int                `json:"suppressions"`
	Reports       int                `json:"reports"`
	Collections   []CollectionResult `json:"collections"`
	NoCampaigns   bool               `json:"noCampaigns,omitempty"`
	Skipped       bool               `json:"skipped,omitempty"`
	Duration      time.Duration      `json:"-"`
}

// Failed returns the collections whose write failed.
func (r *Result) Failed() []CollectionResult {
	var failed []CollectionResult
	for _, c := range r.Collections {
		if c.Err != nil {
			failed = append(failed, c)
		}
	}
	return failed
}

// Message is the human-readable summary of the run.
func (r *Result) Message() string {
	switch {
	case r.Skipped:
		return "Sync already running; skipped"
	case r.NoCampaigns:
		return "No campaigns found; nothing to sync"
	}

	msg := fmt.Sprintf("Synced %d campaigns, %d stats, %d lists, %d unsubscribers",
		r.Campaigns, r.Stats, r.Lists, r.Unsubscribers)
	if failed := r.Failed(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, f := range failed {
			names[i] = f.Collection
		}
		msg += " (write failed: " + strings.Join(names, ", ") + ")"
	}
	return msg
}

// Details is the job-status payload for the run.
func (r *Result) Details() map[string]any {
	d := map[string]any{
		"runId":         r.RunID,
		"message":       r.Message(),
		"campaigns":     r.Campaigns,
		"stats":         r.Stats,
		"lists":         r.Lists,
		"unsubscribers": r.Unsubscribers,
		"durationMs":    r.Duration.Milliseconds(),
	}
	if failed := r.Failed(); len(failed) > 0 {
		errs := make(map[string]any, len(failed))
		for _, f := range failed {
			errs[f.Collection] = f.Err.Error()
		}
		d["writeErrors"] = errs
	}
	return d
}

// SyncAll refreshes every mirrored collection. It fails only when the
// campaign list itself cannot be fetched; individual fetch failures are
// dropped and write failures are reported per collection in the Result.
func (s *Syncer) SyncAll(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: runID(ctx)}

	lock := s.locks(syncLockKey, s.opts.LockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		s.log.Warn("sync lock unavailable, running unlocked", "err", err)
		acquired = true
		lock = distlock.NoopLock{}
	}
	if !acquired {
		res.Skipped = true
		s.log.Info("sync skipped: another run holds the lock")
		return res, nil
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release sync lock", "err", err)
		}
	}()

	campaigns, err := s.source.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	if len(campaigns) == 0 {
		res.NoCampaigns = true
		res.Duration = time.Since(start)
		s.log.Info("no campaigns to sync", "run", res.RunID)
		return res, nil
	}

	stats := fanout.Collect(ctx, s.opts.MaxConcurrency, campaigns, func(ctx context.Context, c mailpro.Campaign) (mailpro.CampaignStats, bool) {
		st := s.source.GetCampaignStats(ctx, c.UID)
		if st == nil {
			return mailpro.CampaignStats{}, false
		}
		return *st, true
	})
	res.Campaigns = len(campaigns)
	res.Stats = len(stats)

	now := s.now()
	res.Collections = append(res.Collections,
		persist(ctx, s.store, s.log, store.RawCampaigns, campaigns, now, func(c mailpro.Campaign) string { return c.UID }),
		persist(ctx, s.store, s.log, store.RawStats, stats, now, func(st mailpro.CampaignStats) string { return st.CampaignUID }),
	)

	lists := s.source.GetLists(ctx)
	unsubscribers := s.uniqueUnsubscribers(ctx, lists)
	res.Lists = len(lists)
	res.Unsubscribers = len(unsubscribers)
	res.Collections = append(res.Collections,
		persist(ctx, s.store, s.log, store.RawLists, lists, now, func(l mailpro.EmailList) string { return l.UID }),
		persist(ctx, s.store, s.log, store.RawUnsubscribers, unsubscribers, now, func(sub mailpro.Subscriber) string { return sub.UID }),
	)

	if s.opts.SuppressionListUID != "" {
		emails := s.source.GetSuppressionEmails(ctx, s.opts.SuppressionListUID)
		res.Suppressions = len(emails)
		res.Collections = append(res.Collections,
			persist(ctx, s.store, s.log, store.RawSuppressions, emails, now, mailpro.SuppressedEmail.Key))
	}

	reports := report.GenerateDailyReport(campaigns, stats)
	res.Reports = len(reports)
	res.Collections = append(res.Collections,
		persist(ctx, s.store, s.log, store.DailyReports, reports, now, report.DocumentID))

	res.Duration = time.Since(start)
	s.log.Info("sync complete", "run", res.RunID, "summary", res.Message(), "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// uniqueUnsubscribers fetches unsubscribed members of every list and keys
// them by subscriber UID. A subscriber on several lists keeps the record
// from the last list.
func (s *Syncer) uniqueUnsubscribers(ctx context.Context, lists []mailpro.EmailList) []mailpro.Subscriber {
	perList := fanout.Collect(ctx, s.opts.MaxConcurrency, lists, func(ctx context.Context, l mailpro.EmailList) ([]mailpro.Subscriber, bool) {
		subs := s.source.GetUnsubscribedSubscribers(ctx, l.UID)
		return subs, len(subs) > 0
	})

	index := make(map[string]int)
	var unique []mailpro.Subscriber
	for _, subs := range perList {
		for _, sub := range subs {
			if sub.UID == "" {
				continue
			}
			if i, ok := index[sub.UID]; ok {
				unique[i] = sub
				continue
			}
			index[sub.UID] = len(unique)
			unique = append(unique, sub)
		}
	}
	return unique
}

// persist converts items to stamped documents and batch-writes them.
// Failures are logged and carried in the returned CollectionResult.
func persist[T any](ctx context.Context, st store.Store, log logger.Entry, collection string, items []T, now time.Time, id func(T) string) CollectionResult {
	res := CollectionResult{Collection: collection}
	docs := make([]store.Document, 0, len(items))
	for _, item := range items {
		key := id(item)
		if key == "" {
			continue
		}
		doc, err := store.NewDocument(key, item)
		if err != nil {
			log.Warn("skipping unencodable document", "collection", collection, "id", key, "err", err)
			continue
		}
		docs = append(docs, doc.Stamp(now))
	}
	res.Count = len(docs)

	if err := st.BatchUpsert(ctx, collection, docs); err != nil {
		res.Err = err
		log.Error("collection write failed", "collection", collection, "documents", len(docs), "err", err)
	}
	return res
}
