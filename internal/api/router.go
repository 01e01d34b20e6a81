package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yurib/scribeline/pkg/logger"
)

// Router wires the HTTP surface: session control, transcript reads, the
// WebSocket upgrade and the Prometheus scrape endpoint.
type Router struct {
	handler *Handler
	metrics http.Handler
	logger  *logger.Logger
}

// NewRouter creates the API router
func NewRouter(handler *Handler, metricsHandler http.Handler, log *logger.Logger) *Router {
	return &Router{
		handler: handler,
		metrics: metricsHandler,
		logger:  log.Named("api-router"),
	}
}

// Routes returns the configured chi router
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", rt.handler.GetSession)
			r.Post("/start", rt.handler.StartSession)
			r.Post("/stop", rt.handler.StopSession)
			r.Post("/pause", rt.handler.PauseSession)
			r.Post("/resume", rt.handler.ResumeSession)
		})
		r.Get("/transcripts", rt.handler.GetTranscripts)
	})

	r.Get("/ws", rt.handler.HandleWebSocket)

	if rt.metrics != nil {
		r.Handle("/metrics", rt.metrics)
	}

	return r
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
