package api

import (
	"field-service-router/internal/api/handlers"
	"field-service-router/internal/platform/obs"
	"field-service-router/internal/ports"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Repo     ports.AppointmentRepository
	Planner  handlers.Previewer
	Runner   handlers.Runner
	Renderer handlers.MapAcceptor
	Location *time.Location
	Checks   map[string]handlers.Check
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
// The interactive session route is only mounted when a renderer and runner are given.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	apptHandler := &handlers.AppointmentHandler{Repo: deps.Repo, Location: deps.Location}
	planHandler := &handlers.PlanHandler{Planner: deps.Planner, Location: deps.Location}
	healthHandler := &handlers.HealthHandler{Checks: deps.Checks}

	mux.HandleFunc("/health", healthHandler.Health)
	mux.HandleFunc("/appointments", apptHandler.List)
	mux.HandleFunc("/plans", planHandler.Plan)
	mux.Handle("/metrics", promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{}))

	if deps.Renderer != nil && deps.Runner != nil {
		sessionHandler := &handlers.SessionHandler{Renderer: deps.Renderer, Runner: deps.Runner, Location: deps.Location}
		mux.HandleFunc("/sessions/ws", sessionHandler.Serve)
	}

	return loggingMiddleware(mux)
}
