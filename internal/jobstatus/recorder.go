// Package jobstatus keeps one status document per scheduled job in the
// jobStatus collection. Recording is best-effort: store failures are logged
// and never reach the job that is reporting.
package jobstatus

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/mailpro-dashboard/internal/pkg/logger"
	"github.com/ignite/mailpro-dashboard/internal/store"
)

// Job names.
const (
	HourlySync       = "hourlySync"
	DailyEmailReport = "dailyEmailReport"
)

// Outcome is the state a job run ended (or is) in.
type Outcome string

const (
	Success Outcome = "success"
	Failure Outcome = "failure"
	Pending Outcome = "pending"
	Running Outcome = "running"
	// Skipped is reported for a run that found another run in progress.
	// It is never stored as a status; see RecordStatus.
	Skipped Outcome = "skipped"
)

// Status is the stored view of one job.
type Status struct {
	Job         string         `json:"job"`
	Status      Outcome        `json:"status"`
	RunID       string         `json:"runId,omitempty"`
	LastRun     string         `json:"lastRun,omitempty"`
	LastSuccess string         `json:"lastSuccess,omitempty"`
	LastFailure string         `json:"lastFailure,omitempty"`
	LastError   string         `json:"lastError,omitempty"`
	LastSkipped string         `json:"lastSkipped,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastUpdated string         `json:"lastUpdated,omitempty"`
}

// Recorder writes job status documents.
type Recorder struct {
	store store.Store
	now   func() time.Time
	log   logger.Entry
}

// NewRecorder creates a recorder over s.
func NewRecorder(s store.Store) *Recorder {
	return &Recorder{
		store: s,
		now:   time.Now,
		log:   logger.With("component", "jobstatus"),
	}
}

// SetClock overrides the time source.
func (r *Recorder) SetClock(now func() time.Time) { r.now = now }

// RecordStatus merges the outcome of a run into the job's document. Success
// stamps lastSuccess and clears lastError and lastFailure; failure stamps
// lastFailure and stores the error text. Skipped stamps lastSkipped and
// restores the status the previous run settled on, leaving its details
// alone. Errors are logged, not returned.
func (r *Recorder) RecordStatus(ctx context.Context, job string, outcome Outcome, details map[string]any, runErr error) {
	ts := r.now().UTC().Format(time.RFC3339)
	set := map[string]any{
		"job":                  job,
		"status":               string(outcome),
		"lastRun":              ts,
		store.FieldLastUpdated: ts,
	}
	if details != nil {
		set["details"] = details
	}

	var remove []string
	switch outcome {
	case Success:
		set["lastSuccess"] = ts
		remove = []string{"lastError", "lastFailure"}
	case Failure:
		set["lastFailure"] = ts
		msg := "unknown error"
		if runErr != nil {
			msg = runErr.Error()
		}
		set["lastError"] = msg
	case Skipped:
		delete(set, "lastRun")
		delete(set, "details")
		set["lastSkipped"] = ts
		set["status"] = string(r.settled(ctx, job))
	}

	if err := r.store.Merge(ctx, store.JobStatus, job, set, remove); err != nil {
		r.log.Error("failed to record job status", "job", job, "status", string(outcome), "err", err)
	}
}

// settled derives the outcome of the last completed run from the fields
// Success and Failure leave behind.
func (r *Recorder) settled(ctx context.Context, job string) Outcome {
	prev, err := r.Get(ctx, job)
	switch {
	case err != nil:
		return Pending
	case prev.LastError != "":
		return Failure
	case prev.LastSuccess != "":
		return Success
	default:
		return Pending
	}
}

// MarkRunning records that a run with runID has started.
func (r *Recorder) MarkRunning(ctx context.Context, job, runID string) {
	ts := r.now().UTC().Format(time.RFC3339)
	set := map[string]any{
		"job":                  job,
		"status":               string(Running),
		"runId":                runID,
		store.FieldLastUpdated: ts,
	}
	if err := r.store.Merge(ctx, store.JobStatus, job, set, nil); err != nil {
		r.log.Error("failed to mark job running", "job", job, "err", err)
	}
}

// Get returns the status of one job. A job that never ran is Pending.
func (r *Recorder) Get(ctx context.Context, job string) (*Status, error) {
	doc, err := r.store.Get(ctx, store.JobStatus, job)
	if errors.Is(err, store.ErrNotFound) {
		return &Status{Job: job, Status: Pending}, nil
	}
	if err != nil {
		return nil, err
	}

	var s Status
	if err := doc.Decode(&s); err != nil {
		return nil, err
	}
	if s.Job == "" {
		s.Job = job
	}
	return &s, nil
}

// List returns the status of every known job, plus Pending entries for the
// built-in jobs that have not run yet.
func (r *Recorder) List(ctx context.Context) ([]Status, error) {
	docs, err := r.store.List(ctx, store.JobStatus)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(docs))
	out := make([]Status, 0, len(docs)+2)
	for _, d := range docs {
		var s Status
		if err := d.Decode(&s); err != nil {
			continue
		}
		if s.Job == "" {
			s.Job = d.ID
		}
		seen[s.Job] = true
		out = append(out, s)
	}
	for _, job := range []string{DailyEmailReport, HourlySync} {
		if !seen[job] {
			out = append(out, Status{Job: job, Status: Pending})
		}
	}
	return out, nil
}
