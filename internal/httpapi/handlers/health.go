package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"clipforge/internal/httpkit"
)

const (
	healthMessage = "Video rendering service is running"
	checkTimeout  = 5 * time.Second
)

// Health performs a health check of the service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":    "ok",
		"message":   healthMessage,
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if h.service != "" {
		health["service"] = h.service
	}
	if h.version != "" {
		health["version"] = h.version
	}

	if r.URL.Query().Get("deep") == "true" {
		checks, healthy := h.deepHealthCheck(ctx)
		health["checks"] = checks
		if !healthy {
			health["status"] = "degraded"
			log.Warn("health check degraded", "checks", checks)
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

// deepHealthCheck runs every registered check plus the job pool stats.
func (h *Handler) deepHealthCheck(ctx context.Context) (map[string]any, bool) {
	checks := make(map[string]any, len(h.checks)+1)
	healthy := true

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := runCheck(ctx, h.checks[name])
		if res["status"] != "ok" {
			healthy = false
		}
		checks[name] = res
	}

	if h.jobs != nil {
		stats := h.jobs.Stats()
		checks["jobs"] = map[string]any{
			"status":   "ok",
			"mode":     stats.Mode,
			"workers":  stats.Workers,
			"busy":     stats.Busy,
			"queued":   stats.Queued,
			"capacity": stats.Capacity,
			"live":     stats.Live,
		}
	}
	return checks, healthy
}

func runCheck(ctx context.Context, check CheckFunc) map[string]any {
	start := time.Now()
	result := map[string]any{
		"status": "ok",
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := check(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
