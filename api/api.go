package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/tracks/pkg/logger"
	"github.com/papercomputeco/tracks/pkg/query"
)

// Server is the API server for the tracks query layer.
type Server struct {
	config  Config
	service *query.Service
	logger  *slog.Logger
	app     *fiber.App
}

// NewServer creates a new API server. The service is injected so it can be
// shared with the background extraction worker.
func NewServer(config Config, service *query.Service, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if config.MaxRangeDays <= 0 {
		config.MaxRangeDays = DefaultMaxRangeDays
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:  config,
		service: service,
		logger:  log,
		app:     app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Get("/extracted", s.handleListExtracted)
	v1.Get("/events/:id/tags", s.handleEventTags)
	v1.Get("/events/:id/extracted", s.handleEventExtracted)
	v1.Get("/rule-groups", s.handleListRuleGroups)
	v1.Put("/rule-groups/:id", s.handleUpsertRuleGroup)
	v1.Post("/derive", s.handleDerive)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
