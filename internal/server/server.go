// Package server assembles the relay core, the WebSocket hub and the HTTP
// surface into one runnable Server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/metrics"
	"github.com/Tyrowin/roomchat/internal/relay"
	"github.com/Tyrowin/roomchat/internal/upload"
)

// Server owns every long-lived component of the chat service.
type Server struct {
	cfg         *Config
	log         *slog.Logger
	metrics     *metrics.Metrics
	hub         *Hub
	coordinator *relay.Coordinator
	uploads     *upload.Handler
	origins     *originPolicy
	upgrader    websocket.Upgrader
}

// New validates cfg and wires the server's components. The hub is not
// started until Run or StartHub.
func New(cfg *Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := metrics.New()
	store, err := upload.NewStore(cfg.UploadDir, cfg.MaxUploadSize, "/uploads/")
	if err != nil {
		return nil, err
	}

	hub := NewHub(logger, m)
	rooms := relay.NewRoomIndex()
	router := relay.NewRouter(rooms, hub, logger, m)
	coordinator := relay.NewCoordinator(relay.NewRegistry(), rooms, router, logger, m)
	hub.AttachMembership(coordinator)

	origins := newOriginPolicy(cfg.AllowedOrigins, logger)

	return &Server{
		cfg:         cfg,
		log:         logger,
		metrics:     m,
		hub:         hub,
		coordinator: coordinator,
		uploads:     upload.NewHandler(store, logger, m),
		origins:     origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}, nil
}

// Hub returns the connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Coordinator returns the membership coordinator.
func (s *Server) Coordinator() *relay.Coordinator {
	return s.coordinator
}

// StartHub runs the hub's event loop in its own goroutine.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.log.Info("hub started and ready to manage WebSocket connections")
}

// Run serves until ctx is cancelled, then shuts the HTTP server and the hub
// down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	s.StartHub()

	httpServer := CreateServer(s.cfg.Port, s.SetupRoutes())
	errCh := make(chan error, 1)
	go func() {
		errCh <- StartServer(httpServer, s.log)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if serveErr != nil {
			serveErr = fmt.Errorf("serve %s: %w", s.cfg.Port, serveErr)
		}
	}

	shutdownErr := ShutdownServer(httpServer, s.cfg.ShutdownTimeout, s.log)
	hubErr := s.hub.Shutdown(s.cfg.ShutdownTimeout)

	return errors.Join(serveErr, shutdownErr, hubErr)
}
