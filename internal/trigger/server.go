// Package trigger exposes the HTTP surface that starts pipeline runs.
package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Veraticus/ads-placement-excluder/internal/common"
	"github.com/Veraticus/ads-placement-excluder/internal/model"
)

// Dispatch starts one run. Implemented by pipeline.Dispatcher.
type Dispatch interface {
	Dispatch(ctx context.Context, req model.RunRequest) (int, error)
}

// Server is the HTTP trigger server.
type Server struct {
	app            *fiber.App
	dispatcher     Dispatch
	ping           func(ctx context.Context) error // nil skips the backbone check
	validate       *validator.Validate
	logger         *slog.Logger
	defaultSheetID string
}

// NewServer builds the trigger server and its routes.
func NewServer(dispatcher Dispatch, ping func(ctx context.Context) error, defaultSheetID string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:      "ads-placement-excluder",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	})

	s := &Server{
		app:            app,
		dispatcher:     dispatcher,
		ping:           ping,
		validate:       validator.New(),
		logger:         logger,
		defaultSheetID: defaultSheetID,
	}

	app.Use(requestid.New())
	app.Use(recover.New())

	app.Get("/healthz", s.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Post("/api/v1/run", s.run)

	return s
}

// App exposes the underlying fiber app, mostly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("trigger server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

type runResponse struct {
	RunID      string `json:"run_id"`
	Dispatched int    `json:"dispatched"`
	DryRun     bool   `json:"dry_run,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// run accepts a RunRequest and fans it out. The response reports only that
// dispatch happened; the pipeline itself completes asynchronously.
func (s *Server) run(c fiber.Ctx) error {
	var req model.RunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Error: "malformed request body",
		})
	}

	if req.SheetID == "" {
		req.SheetID = s.defaultSheetID
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Error: err.Error(),
		})
	}

	dispatched, err := s.dispatcher.Dispatch(c.Context(), req)
	if err != nil {
		s.logger.Error("run dispatch failed", "error", err)
		// A transient failure (rate limit, timeout) is worth the caller's
		// retry; anything else is ours.
		if common.IsRetryable(err) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{
				Error: "temporarily unable to start run",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{
			Error: "failed to start run",
		})
	}

	return c.JSON(runResponse{
		RunID:      req.RunID,
		Dispatched: dispatched,
		DryRun:     req.DryRun,
	})
}

func (s *Server) health(c fiber.Ctx) error {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
