// Package server exposes the scheduler's query and control surface over
// HTTP: schedule CRUD, manual triggers, aggregate status, and metrics.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"backupd/internal/config"
	"backupd/internal/scheduler"
)

// NewRouter assembles the API around a scheduler instance.
func NewRouter(logger zerolog.Logger, sched *scheduler.Scheduler, presets map[string]config.Preset) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(zerologMiddleware(&logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", sched.Metrics().Handler())

	h := &schedulesHandler{sched: sched}
	ph := &presetsHandler{sched: sched, presets: presets}
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.list)
			r.Post("/", h.create)
			r.Post("/from-preset", ph.instantiate)
			r.Get("/{name}", h.get)
			r.Put("/{name}", h.update)
			r.Delete("/{name}", h.remove)
			r.Post("/{name}/toggle", h.toggle)
			r.Post("/{name}/run", h.trigger)
		})
		r.Get("/presets", ph.list)
		r.Get("/scheduler/status", h.status)
		r.Post("/scheduler/start", h.start)
		r.Post("/scheduler/stop", h.stop)
	})

	return r
}
