package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailpro-dashboard/internal/jobstatus"
	"github.com/ignite/mailpro-dashboard/internal/pkg/httputil"
	"github.com/ignite/mailpro-dashboard/internal/store"
)

const healthVersion = "1.0.0"

// Component states.
const (
	stateUp       = "up"
	stateDown     = "down"
	stateDegraded = "degraded"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string                    `json:"status"` // healthy, degraded or unhealthy
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the verdict for one dependency.
type ComponentCheck struct {
	Status     string `json:"status"`
	Latency    string `json:"latency,omitempty"`
	Message    string `json:"message,omitempty"`
	Configured bool   `json:"configured"`
}

// HealthChecker reports on the store, the job-lock Redis and the last sync.
type HealthChecker struct {
	store     store.Store
	status    *jobstatus.Recorder
	redis     *redis.Client
	startedAt time.Time
}

// NewHealthChecker creates a HealthChecker. redisClient may be nil.
func NewHealthChecker(st store.Store, status *jobstatus.Recorder, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{store: st, status: status, redis: redisClient, startedAt: time.Now()}
}

// HandleHealth always answers 200; the verdict is in the body.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.check(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  overallStatus(checks),
		Version: healthVersion,
		Uptime:  hc.uptime(),
		Checks:  checks,
	})
}

// HandleLiveness answers 200 while the process is up.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{"status": "alive", "uptime": hc.uptime()})
}

// HandleReadiness answers 503 while the store is unreachable.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.check(r.Context())
	overall := overallStatus(checks)

	code := http.StatusOK
	if overall == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]any{
		"ready":  code == http.StatusOK,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) uptime() string {
	return time.Since(hc.startedAt).Truncate(time.Second).String()
}

func (hc *HealthChecker) check(ctx context.Context) map[string]ComponentCheck {
	type named struct {
		name  string
		check ComponentCheck
	}
	probes := map[string]func(context.Context) ComponentCheck{
		"store": hc.checkStore,
		"redis": hc.checkRedis,
		"sync":  hc.checkSync,
	}

	ch := make(chan named, len(probes))
	for name, fn := range probes {
		go func() { ch <- named{name, fn(ctx)} }()
	}
	checks := make(map[string]ComponentCheck, len(probes))
	for range probes {
		n := <-ch
		checks[n.name] = n.check
	}
	return checks
}

// probe times fn under timeout and marks it degraded past slowAfter.
func probe(ctx context.Context, timeout, slowAfter time.Duration, fn func(context.Context) error) ComponentCheck {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	latency := time.Since(start)

	c := ComponentCheck{Status: stateUp, Latency: latency.String(), Configured: true}
	switch {
	case err != nil:
		c.Status = stateDown
		c.Message = err.Error()
	case latency > slowAfter:
		c.Status = stateDegraded
		c.Message = fmt.Sprintf("slow response (%s)", latency)
	}
	return c
}

func (hc *HealthChecker) checkStore(ctx context.Context) ComponentCheck {
	if hc.store == nil {
		return ComponentCheck{Status: stateDown, Message: "not configured"}
	}
	return probe(ctx, 3*time.Second, time.Second, func(ctx context.Context) error {
		_, err := hc.store.List(ctx, store.JobStatus)
		return err
	})
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redis == nil {
		return ComponentCheck{Status: stateDown, Message: "not configured; job locking disabled"}
	}
	return probe(ctx, 2*time.Second, 500*time.Millisecond, func(ctx context.Context) error {
		return hc.redis.Ping(ctx).Err()
	})
}

// checkSync is degraded while the latest hourly sync stands failed.
func (hc *HealthChecker) checkSync(ctx context.Context) ComponentCheck {
	if hc.status == nil {
		return ComponentCheck{Status: stateDown, Message: "not configured"}
	}
	st, err := hc.status.Get(ctx, jobstatus.HourlySync)
	if err != nil {
		return ComponentCheck{Status: stateDegraded, Configured: true, Message: "status unavailable: " + err.Error()}
	}

	c := ComponentCheck{Status: stateUp, Configured: true, Message: string(st.Status)}
	switch {
	case st.Status == jobstatus.Failure:
		c.Status = stateDegraded
		c.Message = fmt.Sprintf("last sync failed at %s: %s", st.LastFailure, st.LastError)
	case st.LastSuccess != "":
		c.Message = "last success " + st.LastSuccess
	}
	return c
}

// overallStatus is unhealthy when the store is down, degraded when any
// configured component is not up, healthy otherwise.
func overallStatus(checks map[string]ComponentCheck) string {
	if checks["store"].Status == stateDown {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Configured && c.Status != stateUp {
			return "degraded"
		}
	}
	return "healthy"
}
