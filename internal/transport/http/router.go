// Package httptransport wires handlers, middleware and operational endpoints
// into the service's HTTP surface.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"economiza/internal/transport/http/shared"
)

// HealthChecker reports readiness of one dependency.
type HealthChecker func(ctx context.Context) error

// NewRouter assembles the full route table. Operational endpoints stay
// outside the authenticated receipt router.
func NewRouter(h *Handler, logger *slog.Logger, checks map[string]HealthChecker) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", handleHealth(logger, checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	h.Register(r)
	return r
}

// handleHealth runs each dependency check and reports per-dependency status.
// Any failing dependency turns the overall answer into 503.
func handleHealth(logger *slog.Logger, checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := http.StatusOK
		detail := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed",
					"dependency", name,
					"error", err.Error(),
				)
				detail[name] = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			detail[name] = "ok"
		}
		shared.WriteJSON(w, status, map[string]any{
			"status":       statusWord(status),
			"dependencies": detail,
		})
	}
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
