package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailpro-dashboard/internal/jobstatus"
	"github.com/ignite/mailpro-dashboard/internal/pkg/logger"
	"github.com/ignite/mailpro-dashboard/internal/syncer"
)

// Job names accepted by Run.
const (
	JobSync        = "sync"
	JobDailyReport = "daily-report"
)

// ErrUnknownJob is returned by Run for an unrecognised job name.
var ErrUnknownJob = errors.New("unknown job")

type syncRunner interface {
	SyncAll(ctx context.Context) (*syncer.Result, error)
}

type dailyRunner interface {
	Run(ctx context.Context, now time.Time) (*syncer.DailyOutcome, error)
}

// Jobs runs the scheduled jobs outside of HTTP, recording status the same
// way the cron endpoints do.
type Jobs struct {
	syncer    syncRunner
	daily     dailyRunner
	status    *jobstatus.Recorder
	recipient string
	now       func() time.Time
}

// NewJobs creates a job runner.
func NewJobs(s syncRunner, d dailyRunner, status *jobstatus.Recorder, recipient string) *Jobs {
	return &Jobs{syncer: s, daily: d, status: status, recipient: recipient, now: time.Now}
}

// Run executes the named job once and returns its summary message.
func (j *Jobs) Run(ctx context.Context, job string) (string, error) {
	switch job {
	case JobSync:
		return j.runSync(ctx)
	case JobDailyReport:
		return j.runDaily(ctx)
	default:
		return "", fmt.Errorf("%w %q (want %s or %s)", ErrUnknownJob, job, JobSync, JobDailyReport)
	}
}

func (j *Jobs) runSync(ctx context.Context) (string, error) {
	runID := uuid.New().String()
	ctx = syncer.WithRunID(ctx, runID)
	statusCtx := context.WithoutCancel(ctx)
	j.status.MarkRunning(statusCtx, jobstatus.HourlySync, runID)

	res, err := j.syncer.SyncAll(ctx)
	if err != nil {
		j.status.RecordStatus(statusCtx, jobstatus.HourlySync, jobstatus.Failure, map[string]any{"runId": runID}, err)
		return "", err
	}
	outcome := jobstatus.Success
	if res.Skipped {
		outcome = jobstatus.Skipped
	}
	j.status.RecordStatus(statusCtx, jobstatus.HourlySync, outcome, res.Details(), nil)
	return res.Message(), nil
}

func (j *Jobs) runDaily(ctx context.Context) (string, error) {
	if j.recipient == "" {
		return "", errors.New("report recipient is not configured")
	}

	runID := uuid.New().String()
	ctx = syncer.WithRunID(ctx, runID)
	statusCtx := context.WithoutCancel(ctx)
	j.status.MarkRunning(statusCtx, jobstatus.DailyEmailReport, runID)

	out, err := j.daily.Run(ctx, j.now())
	if err != nil {
		j.status.RecordStatus(statusCtx, jobstatus.DailyEmailReport, jobstatus.Failure, map[string]any{"runId": runID}, err)
		return "", err
	}
	j.status.RecordStatus(statusCtx, jobstatus.DailyEmailReport, jobstatus.Success, out.Details(), nil)
	return out.Message(), nil
}

// Every runs job on each tick of interval until ctx is done. Failures are
// logged; the loop keeps going.
func (j *Jobs) Every(ctx context.Context, interval time.Duration, job string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg, err := j.Run(ctx, job)
			if err != nil {
				logger.Error("scheduled job failed", "job", job, "err", err)
				continue
			}
			logger.Info("scheduled job finished", "job", job, "result", msg)
		}
	}
}
