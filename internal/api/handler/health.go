package handler

import (
	"net/http"

	"github.com/devforge-dev/devforge/internal/api/response"
	"github.com/devforge-dev/devforge/internal/cache"
	"github.com/devforge-dev/devforge/internal/store"
)

// NewHealthHandler returns the handler for GET /api/v1/health. It reports
// per-dependency status and degrades to 503 when either backend is down.
func NewHealthHandler(st store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"redis":    "ok",
		}
		healthy := true

		if err := st.Ping(r.Context()); err != nil {
			checks["database"] = "unreachable"
			healthy = false
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["redis"] = "unreachable"
			healthy = false
		}

		if !healthy {
			response.Error(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
				"One or more dependencies are unreachable", checks)
			return
		}
		response.JSON(w, map[string]any{"status": "ok", "checks": checks})
	}
}
