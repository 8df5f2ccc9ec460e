// Package main provides the maestro API server.
package main

import (
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/maestro-flow/maestro/pkg/engine"
	"github.com/maestro-flow/maestro/pkg/web"
	"github.com/maestro-flow/maestro/pkg/workflow"
)

type API struct {
	logger       *slog.Logger
	definitions  *workflow.Repository
	orchestrator *engine.Orchestrator
}

func NewAPI(logger *slog.Logger, definitions *workflow.Repository, orchestrator *engine.Orchestrator) *API {
	return &API{
		logger:       logger,
		definitions:  definitions,
		orchestrator: orchestrator,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.definitions, a.orchestrator)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Maestro API")
	})

	d := app.Group("/definitions")
	d.Get("/", handlers.GetDefinitions)
	d.Post("/", handlers.RegisterDefinition)
	d.Get("/:id", handlers.GetDefinition)

	r := app.Group("/runs")
	r.Get("/", handlers.GetRuns)
	r.Post("/", handlers.StartRun)
	r.Get("/:id", handlers.GetRun)
	r.Post("/:id/cancel", handlers.CancelRun)
	r.Post("/:id/approvals/:stepId", handlers.ResolveApproval)

	app.Get("/approvals", handlers.GetPendingApprovals)
	app.Get("/health", handlers.HealthCheck)

	return app
}
