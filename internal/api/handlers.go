package api

import (
	"context"
	"time"

	"github.com/ignite/mailpro-dashboard/internal/jobstatus"
	"github.com/ignite/mailpro-dashboard/internal/pkg/logger"
	"github.com/ignite/mailpro-dashboard/internal/store"
	"github.com/ignite/mailpro-dashboard/internal/syncer"
)

// SyncRunner runs one mirror refresh. *syncer.Syncer satisfies it.
type SyncRunner interface {
	SyncAll(ctx context.Context) (*syncer.Result, error)
}

// DailyRunner builds and sends the daily report. *syncer.DailyJob satisfies it.
type DailyRunner interface {
	Run(ctx context.Context, now time.Time) (*syncer.DailyOutcome, error)
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Store           store.Store
	Syncer          SyncRunner
	Daily           DailyRunner
	Status          *jobstatus.Recorder
	CronSecret      string
	ReportRecipient string
	SyncTimeout     time.Duration
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store       store.Store
	syncer      SyncRunner
	daily       DailyRunner
	status      *jobstatus.Recorder
	cronSecret  string
	recipient   string
	syncTimeout time.Duration
	now         func() time.Time
	log         logger.Entry
}

// NewHandlers creates a new Handlers instance
func NewHandlers(d Deps) *Handlers {
	if d.SyncTimeout <= 0 {
		d.SyncTimeout = 120 * time.Second
	}
	if d.Status == nil {
		d.Status = jobstatus.NewRecorder(d.Store)
	}
	return &Handlers{
		store:       d.Store,
		syncer:      d.Syncer,
		daily:       d.Daily,
		status:      d.Status,
		cronSecret:  d.CronSecret,
		recipient:   d.ReportRecipient,
		syncTimeout: d.SyncTimeout,
		now:         time.Now,
		log:         logger.With("component", "api"),
	}
}

// SetClock overrides the time source used for report dates.
func (h *Handlers) SetClock(now func() time.Time) { h.now = now }
