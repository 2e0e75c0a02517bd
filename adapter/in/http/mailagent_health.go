package http

import (
	"context"
	"time"

	"mailagent_server/core/port/out"
	"mailagent_server/core/service/auth"
	"mailagent_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler serves liveness, readiness and the operational stats page.
// Any dependency may be nil; readiness then reports it as not configured.
type HealthHandler struct {
	shared   out.EmailStore
	cache    out.Cache
	stats    *metrics.WorkerStats
	sessions *auth.SessionService
	queue    out.JobQueue
}

func NewHealthHandler(shared out.EmailStore, cache out.Cache, stats *metrics.WorkerStats, sessions *auth.SessionService, queue out.JobQueue) *HealthHandler {
	return &HealthHandler{
		shared:   shared,
		cache:    cache,
		stats:    stats,
		sessions: sessions,
		queue:    queue,
	}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/health/ready", h.Ready)
	app.Get("/health/stats", h.Stats)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready probes the shared store and the cache. A failing probe returns 503
// so an orchestrator stops routing before requests start failing.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.shared != nil {
		var one int
		if err := h.shared.Get(ctx, &one, `SELECT 1`); err != nil {
			checks["store"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["store"] = "healthy"
		}
	} else {
		checks["store"] = "not configured"
	}

	if h.cache != nil {
		if _, err := h.cache.Stats(ctx); err != nil {
			checks["cache"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["cache"] = "healthy"
		}
	} else {
		checks["cache"] = "not configured"
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Stats reports worker counters, queue depth, cache effectiveness, the
// latency percentiles and the live session count.
func (h *HealthHandler) Stats(c *fiber.Ctx) error {
	payload := fiber.Map{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if h.stats != nil {
		payload["worker"] = h.stats.Snapshot()
	}
	if h.queue != nil {
		payload["queue_length"] = h.queue.Length()
	}
	if h.cache != nil {
		if stats, err := h.cache.Stats(c.Context()); err == nil {
			payload["cache"] = stats
		}
	}
	if h.sessions != nil {
		payload["active_sessions"] = h.sessions.ActiveSessions()
	}

	latencies := make(map[string]any)
	for name, stats := range metrics.GetAllLatencyStats() {
		latencies[name] = stats.ToMap()
	}
	payload["latencies"] = latencies

	return c.JSON(payload)
}
