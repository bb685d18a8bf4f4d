package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ignite/mailpro-dashboard/internal/jobstatus"
	"github.com/ignite/mailpro-dashboard/internal/pkg/httputil"
	"github.com/ignite/mailpro-dashboard/internal/syncer"
)

// RequireCronSecret rejects requests whose Authorization header is not
// exactly "Bearer <secret>". An unset secret rejects everything.
func (h *Handlers) RequireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cronSecret == "" {
			h.log.Error("cron secret not configured, rejecting trigger", "path", r.URL.Path)
			httputil.Unauthorized(w)
			return
		}
		want := []byte("Bearer " + h.cronSecret)
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			h.log.Warn("cron trigger rejected", "path", r.URL.Path, "ip", r.RemoteAddr)
			httputil.Unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HourlySync runs the sync orchestrator for the external scheduler. Status
// writes outlive the request so a disconnecting scheduler cannot drop them.
//
//	GET /api/cron/hourly-sync
func (h *Handlers) HourlySync(w http.ResponseWriter, r *http.Request) {
	runID := uuid.New().String()
	ctx := syncer.WithRunID(r.Context(), runID)
	statusCtx := context.WithoutCancel(ctx)
	h.status.MarkRunning(statusCtx, jobstatus.HourlySync, runID)

	res, err := h.syncer.SyncAll(ctx)
	if err != nil {
		h.status.RecordStatus(statusCtx, jobstatus.HourlySync, jobstatus.Failure, map[string]any{"runId": runID}, err)
		h.log.Error("hourly sync failed", "run", runID, "err", err)
		httputil.OperatorError(w, err)
		return
	}

	outcome := jobstatus.Success
	if res.Skipped {
		outcome = jobstatus.Skipped
	}
	h.status.RecordStatus(statusCtx, jobstatus.HourlySync, outcome, res.Details(), nil)
	httputil.OK(w, map[string]any{
		"success": true,
		"message": res.Message(),
		"result":  res,
	})
}

// DailyReport builds and mails the daily report for the external scheduler.
//
//	GET /api/cron/daily-report
func (h *Handlers) DailyReport(w http.ResponseWriter, r *http.Request) {
	if h.recipient == "" {
		httputil.OperatorError(w, errors.New("report recipient is not configured"))
		return
	}

	runID := uuid.New().String()
	ctx := syncer.WithRunID(r.Context(), runID)
	statusCtx := context.WithoutCancel(ctx)
	h.status.MarkRunning(statusCtx, jobstatus.DailyEmailReport, runID)

	out, err := h.daily.Run(ctx, h.now())
	if err != nil {
		h.status.RecordStatus(statusCtx, jobstatus.DailyEmailReport, jobstatus.Failure, map[string]any{"runId": runID}, err)
		h.log.Error("daily report failed", "run", runID, "err", err)
		httputil.OperatorError(w, err)
		return
	}

	h.status.RecordStatus(statusCtx, jobstatus.DailyEmailReport, jobstatus.Success, out.Details(), nil)
	httputil.OK(w, map[string]any{
		"success": true,
		"message": out.Message(),
		"result":  out,
	})
}
