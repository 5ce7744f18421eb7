// Package api serves a small local HTTP surface next to the bus: health,
// status, message injection and a websocket stream of outbound publications.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/grego360/sense-hat-mqtt/bus"
	"github.com/grego360/sense-hat-mqtt/logging"
	"github.com/grego360/sense-hat-mqtt/sensors"
)

// Injector accepts a message as if it had arrived on the bus.
type Injector interface {
	Inject(ctx context.Context, msg bus.Message) error
}

type Status struct {
	Bus       BusStatus       `json:"bus"`
	Display   DisplayStatus   `json:"display"`
	Telemetry TelemetryStatus `json:"telemetry"`
	Joystick  JoystickStatus  `json:"joystick"`
}

type BusStatus struct {
	Backend   string `json:"backend"`
	Connected bool   `json:"connected"`
}

type DisplayStatus struct {
	Rotation int  `json:"rotation"`
	Busy     bool `json:"busy"`
}

type TelemetryStatus struct {
	Running bool            `json:"running"`
	Period  string          `json:"period"`
	Last    *sensors.Sample `json:"last,omitempty"`
}

type JoystickStatus struct {
	Running bool `json:"running"`
}

type Config struct {
	Listen         string
	MessageTopic   string
	CommandTopic   string
	InjectTimeout  time.Duration
	MaxPayloadSize int64
}

type Server struct {
	cfg       Config
	injector  Injector
	status    func() Status
	hub       *Hub
	logger    logging.Logger
	startedAt time.Time
	upgrader  websocket.Upgrader
	server    *http.Server
}

func New(cfg Config, injector Injector, status func() Status, hub *Hub, logger logging.Logger) *Server {
	if cfg.InjectTimeout <= 0 {
		cfg.InjectTimeout = 5 * time.Second
	}
	if cfg.MaxPayloadSize <= 0 {
		cfg.MaxPayloadSize = 64 << 10
	}
	return &Server{
		cfg:       cfg,
		injector:  injector,
		status:    status,
		hub:       hub,
		logger:    logging.OrNop(logger),
		startedAt: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.cfg.Listen,
		Handler:     s.Routes(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server listening on %s", s.cfg.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Post("/message", s.handleInject(s.cfg.MessageTopic))
	r.Post("/command", s.handleInject(s.cfg.CommandTopic))
	r.Get("/events", s.handleEvents)
	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("%s %s -> %d (%v)", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
