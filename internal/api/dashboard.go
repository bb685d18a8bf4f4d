package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailpro-dashboard/internal/mailpro"
	"github.com/ignite/mailpro-dashboard/internal/pkg/httputil"
	"github.com/ignite/mailpro-dashboard/internal/report"
	"github.com/ignite/mailpro-dashboard/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// loadCollection reads and decodes a whole mirrored collection.
func loadCollection[T any](h *Handlers, r *http.Request, collection string) ([]T, error) {
	docs, err := h.store.List(r.Context(), collection)
	if err != nil {
		return nil, err
	}
	return store.DecodeAll[T](docs), nil
}

// GetCampaigns lists mirrored campaigns, optionally filtered by ?status=.
//
//	GET /api/campaigns
func (h *Handlers) GetCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := loadCollection[mailpro.Campaign](h, r, store.RawCampaigns)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		filtered := campaigns[:0]
		for _, c := range campaigns {
			if strings.EqualFold(string(c.Status), status) {
				filtered = append(filtered, c)
			}
		}
		campaigns = filtered
	}
	httputil.OK(w, Paginate(campaigns, ParsePagination(r, defaultPageSize, maxPageSize)))
}

// GetStats lists mirrored campaign stats.
//
//	GET /api/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := loadCollection[mailpro.CampaignStats](h, r, store.RawStats)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, Paginate(stats, ParsePagination(r, defaultPageSize, maxPageSize)))
}

// GetReports derives daily reports from the mirrored campaigns and stats.
// ?date=MM/DD/YYYY restricts the rows to one day.
//
//	GET /api/reports
func (h *Handlers) GetReports(w http.ResponseWriter, r *http.Request) {
	campaigns, err := loadCollection[mailpro.Campaign](h, r, store.RawCampaigns)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	stats, err := loadCollection[mailpro.CampaignStats](h, r, store.RawStats)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	reports := report.GenerateDailyReport(campaigns, stats)
	seg := report.Segment(reports, h.now())

	if date := strings.TrimSpace(r.URL.Query().Get("date")); date != "" {
		filtered := make([]report.DailyReport, 0, len(reports))
		for _, rep := range reports {
			if rep.Date == date {
				filtered = append(filtered, rep)
			}
		}
		reports = filtered
	}

	httputil.OK(w, map[string]any{
		"reports": reports,
		"totals":  report.Totals(reports),
		"today": map[string]any{
			"date":   seg.TodayDate,
			"totals": report.Totals(seg.Today),
		},
		"yesterday": map[string]any{
			"date":   seg.YesterdayDate,
			"totals": report.Totals(seg.Yesterday),
		},
	})
}

// GetLists lists mirrored email lists.
//
//	GET /api/lists
func (h *Handlers) GetLists(w http.ResponseWriter, r *http.Request) {
	lists, err := loadCollection[mailpro.EmailList](h, r, store.RawLists)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, Paginate(lists, ParsePagination(r, defaultPageSize, maxPageSize)))
}

// GetUnsubscribers lists mirrored unsubscribers, optionally filtered by ?list=.
//
//	GET /api/unsubscribers
func (h *Handlers) GetUnsubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := loadCollection[mailpro.Subscriber](h, r, store.RawUnsubscribers)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if list := r.URL.Query().Get("list"); list != "" {
		filtered := subs[:0]
		for _, s := range subs {
			if s.ListUID == list {
				filtered = append(filtered, s)
			}
		}
		subs = filtered
	}
	httputil.OK(w, Paginate(subs, ParsePagination(r, defaultPageSize, maxPageSize)))
}

// GetJobStatuses returns the status document of every job.
//
//	GET /api/job-status
func (h *Handlers) GetJobStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.status.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"jobs": statuses})
}

// GetJobStatus returns the status document of one job.
//
//	GET /api/job-status/{job}
func (h *Handlers) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.status.Get(r.Context(), chi.URLParam(r, "job"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, st)
}
