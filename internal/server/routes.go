// Package server wires HTTP handlers into a ServeMux for the chat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/rs/cors"
)

// SetupRoutes configures the application routes and wraps them in the CORS
// policy derived from the allowed origins.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.PageHandler)
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/upload", s.uploads.ServeUpload)
	mux.HandleFunc("/uploads/", s.uploads.ServeFile)
	mux.Handle("/metrics", s.metrics.Handler())

	return cors.New(cors.Options{
		AllowedOrigins: s.origins.corsOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead},
	}).Handler(mux)
}
