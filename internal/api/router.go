package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter(dash http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Device push endpoints. The path is what JIMI's cloud is configured with.
	r.Post("/jimi/push", s.handlePush)
	r.Post("/test/push", s.handleTestPush)

	// Read endpoints used by the dashboard.
	r.Route("/api", func(r chi.Router) {
		r.Get("/latest", s.handleLatest)
		r.Get("/log/{imei}", s.handleLog)
		r.Get("/devices", s.handleDevices)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/health", s.handleHealth)
			r.Get("/metrics", s.handleMetrics)
		})
	})

	r.Get("/ws", s.handleWebSocket)

	r.Get("/", dash.ServeHTTP)
	r.Handle("/static/*", http.StripPrefix("/static", dash))

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
