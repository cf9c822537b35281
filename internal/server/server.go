// Package server exposes the REST and websocket API.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kindredhq/kindred/internal/metrics"
	"github.com/kindredhq/kindred/internal/models"
	"github.com/kindredhq/kindred/internal/service"
)

// JobStarter accepts ingestion requests.
type JobStarter interface {
	StartProfileIngest(ctx context.Context, req service.ProfileIngestRequest) (string, error)
	StartVoiceIngest(ctx context.Context, ownerID, filename string, audio []byte) (string, error)
}

// JobReader reads persisted jobs for polling and streaming.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*models.IngestJob, error)
}

// Completer applies a provider task result exactly once.
type Completer interface {
	HandleCompletion(ctx context.Context, providerTaskID string, payload []byte) (service.Outcome, error)
}

// Discovery serves the read side of the graph.
type Discovery interface {
	FindMatches(ctx context.Context, personID string, limit int) ([]models.Match, error)
	GraphSnapshot(ctx context.Context, centerIDs []string) (*models.GraphData, error)
	Interests(ctx context.Context, personID string) ([]models.Interest, error)
	Icebreaker(ctx context.Context, personID, targetID string) (string, error)
}

// Config carries the HTTP-facing tunables.
type Config struct {
	Port              string
	MaxPostsDefault   int
	MaxPostsHardLimit int

	// Stats, when set, is served at /api/stats.
	Stats *metrics.Collector
}

// Server is the HTTP API.
type Server struct {
	echo      *echo.Echo
	jobs      JobStarter
	jobReader JobReader
	completer Completer
	discovery Discovery
	cfg       Config
	logger    *slog.Logger
}

// New builds the echo server with routes and middleware registered.
func New(jobs JobStarter, jobReader JobReader, completer Completer, discovery Discovery, cfg Config, logger *slog.Logger) *Server {
	if cfg.MaxPostsDefault <= 0 {
		cfg.MaxPostsDefault = 10
	}
	if cfg.MaxPostsHardLimit <= 0 {
		cfg.MaxPostsHardLimit = 25
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit("25M"))

	s := &Server{
		echo:      e,
		jobs:      jobs,
		jobReader: jobReader,
		completer: completer,
		discovery: discovery,
		cfg:       cfg,
		logger:    logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.POST("/api/ingest/profile", s.ingestProfile)
	s.echo.POST("/api/ingest/voice", s.ingestVoice)
	s.echo.GET("/api/jobs/:id", s.getJob)
	s.echo.POST("/api/webhooks/research", s.researchWebhook)
	s.echo.GET("/api/discover/matches", s.discoverMatches)
	s.echo.GET("/api/discover/graph", s.discoverGraph)
	s.echo.GET("/api/discover/interests", s.discoverInterests)
	s.echo.POST("/api/chat/icebreaker", s.chatIcebreaker)
	s.echo.GET("/ws/jobs/:id", s.streamJob)

	if s.cfg.Stats != nil {
		s.echo.GET("/api/stats", func(c echo.Context) error {
			return c.JSON(http.StatusOK, apiResponse{Data: s.cfg.Stats.Snapshot()})
		})
	}

	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Echo exposes the underlying router, used by handler tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start blocks serving HTTP until Shutdown or a fatal listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "port", s.cfg.Port)
	return s.echo.Start(":" + s.cfg.Port)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
