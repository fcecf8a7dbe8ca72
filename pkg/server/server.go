package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"chat-playback-engine/pkg/handlers"
	"chat-playback-engine/pkg/service"
)

// NewRouter wires the playback API. gatherer backs /metrics.
func NewRouter(svc *service.Service, gatherer prometheus.Gatherer, logger *logrus.Logger) *mux.Router {
	handler := handlers.NewHandler(svc, logger)

	router := mux.NewRouter()

	// API routes
	router.HandleFunc("/slots/{slot}/activate", handler.Activate).Methods("POST")
	router.HandleFunc("/slots/{slot}/deactivate", handler.Deactivate).Methods("POST")
	router.HandleFunc("/slots/{slot}/snapshot", handler.Snapshot).Methods("GET")
	router.HandleFunc("/slots/{slot}/ws", handler.Stream).Methods("GET")
	router.HandleFunc("/scenarios", handler.Scenarios).Methods("GET")
	router.HandleFunc("/stats", handler.Stats).Methods("GET")
	router.HandleFunc("/events", handler.Events).Methods("GET")
	router.HandleFunc("/health", handler.Health).Methods("GET")
	router.HandleFunc("/status", handler.Status).Methods("GET")

	// Metrics endpoint
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// Add logging middleware
	router.Use(loggingMiddleware(logger))

	return router
}

func NewHTTPServer(svc *service.Service, gatherer prometheus.Gatherer, logger *logrus.Logger) *http.Server {
	return &http.Server{
		Addr:        ":" + svc.Config().Port,
		Handler:     NewRouter(svc, gatherer, logger),
		ReadTimeout: 15 * time.Second,
		// Websocket streams are long lived; writes set their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Debug("HTTP request processed")
		})
	}
}
