package handlers

import (
	"context"
	"log"
	"net/http"
	"sort"
	"time"
)

// Check probes one backing dependency (database, redis).
type Check func(ctx context.Context) error

// HealthHandler reports liveness plus the state of each registered check.
type HealthHandler struct {
	Checks map[string]Check
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	res := map[string]string{"status": "ok"}
	for _, name := range names {
		if err := h.Checks[name](ctx); err != nil {
			log.Printf("health check failed name=%s err=%v", name, err)
			res[name] = "down"
			res["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		res[name] = "ok"
	}

	writeJSON(w, r, status, res)
}
