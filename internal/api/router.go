package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds each dependency check made by /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

		r.Route("/missions", func(r chi.Router) {
			r.Get("/queue", s.handleListQueue)
			r.Post("/queue", s.handleEnqueue)
			r.Get("/queue/length", s.handleQueueLength)
			r.Get("/current", s.handleCurrent)
			r.Get("/next", s.handlePeekNext)
			r.Get("/active", s.handleGetActive)
			r.Put("/active", s.handleSetActive)
			r.Get("/status", s.handleStatus)
			r.Get("/completed/last", s.handleLastCompleted)
			r.Get("/classified/last", s.handleLastClassified)
			r.Post("/classified", s.handlePostClassified)
			r.Get("/history", s.handleListHistory)
			r.Get("/history/{id}", s.handleGetHistory)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/stats", s.handleDeviceStats)
			r.Get("/valves", s.handleListValves)
			r.Get("/valves/{id}", s.handleGetValve)
			r.Post("/valves/{id}/state", s.handleSetValveState)
			r.Get("/flowmeters", s.handleListFlowmeters)
			r.Get("/flowmeters/{id}", s.handleGetFlowmeter)
			r.Post("/flowmeters/{id}/reading", s.handlePostReading)
		})

		r.Route("/ws/missions", func(r chi.Router) {
			r.Get("/completed", s.handleCompletedStream)
			r.Get("/classified", s.handleClassifiedStream)
		})
	})

	return r
}

// handleHealth reports the server version and the state of each
// dependency. Any failing dependency makes the response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	components := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"components":     components,
		"scheduler":      s.controller.Status(),
		"ws_clients":     s.hub.ClientCount(),
	})
}
