package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/mailpro-dashboard/internal/pkg/httputil"
	"github.com/ignite/mailpro-dashboard/internal/syncer"
)

// ManualSync runs a sync for the dashboard, bounded by the configured
// timeout. On timeout the run keeps going in the background; only the
// response gives up.
//
//	GET /api/sync
func (h *Handlers) ManualSync(w http.ResponseWriter, r *http.Request) {
	type outcome struct {
		res *syncer.Result
		err error
	}
	done := make(chan outcome, 1)
	ctx := context.WithoutCancel(r.Context())
	go func() {
		res, err := h.syncer.SyncAll(ctx)
		done <- outcome{res, err}
	}()

	timer := time.NewTimer(h.syncTimeout)
	defer timer.Stop()

	select {
	case o := <-done:
		if o.err != nil {
			httputil.OperatorError(w, o.err)
			return
		}
		httputil.OK(w, map[string]any{
			"success": true,
			"message": o.res.Message(),
			"result":  o.res,
		})
	case <-timer.C:
		h.log.Warn("manual sync exceeded timeout, still running", "timeout", h.syncTimeout.String())
		httputil.GatewayTimeout(w, fmt.Sprintf("sync timed out after %s", h.syncTimeout))
	}
}
