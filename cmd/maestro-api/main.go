package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/maestro-flow/maestro/pkg/cmd"
	"github.com/maestro-flow/maestro/pkg/engine"
	"github.com/maestro-flow/maestro/pkg/log"
	"github.com/maestro-flow/maestro/pkg/notify"
	"github.com/maestro-flow/maestro/pkg/otelhelper"
	"github.com/maestro-flow/maestro/pkg/triggers/manager"
	"github.com/maestro-flow/maestro/pkg/triggers/redisqueue"
	"github.com/maestro-flow/maestro/pkg/triggers/schedule"
	"github.com/maestro-flow/maestro/pkg/workflow"
)

const defaultPort = 9090

func main() {
	command := &cli.Command{
		Name:                  "maestro-api",
		Usage:                 "Register workflow definitions and manage runs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres://, memory://, or a file path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.IntFlag{
				Name:    "max-concurrent-runs",
				Usage:   "Maximum number of runs executing at once",
				Value:   engine.DefaultMaxConcurrentRuns,
				Sources: cli.EnvVars("MAX_CONCURRENT_RUNS"),
			},
			&cli.DurationFlag{
				Name:    "schedule-poll-interval",
				Usage:   "How often due schedules are checked",
				Value:   schedule.DefaultPollInterval,
				Sources: cli.EnvVars("SCHEDULE_POLL_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis address for queue triggers and the metric feed (host:port, empty disables threshold triggers)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "metrics-queue",
				Usage:   "Redis list the metric feed consumes",
				Value:   "maestro:metrics",
				Sources: cli.EnvVars("METRICS_QUEUE"),
			},
			&cli.BoolFlag{
				Name:    "enable-tracing",
				Usage:   "Export OTLP traces for runs and steps",
				Sources: cli.EnvVars("ENABLE_TRACING"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("maestro-api")

	logger.InfoContext(ctx, "Initializing Maestro API")

	store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	bus, subscriber := cmd.NewEventBus(command.String("event-bus"), "maestro-api", logger)
	defer func() {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	var tracer trace.Tracer

	if command.Bool("enable-tracing") {
		var err error

		tracer, err = otelhelper.NewTracer(ctx, "maestro-api")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
	}

	registry := cmd.NewRegistry(logger)
	validator := workflow.NewValidator(registry)
	definitions := workflow.NewRepository(store, validator)

	orchestrator := engine.NewOrchestrator(
		logger,
		definitions,
		store,
		registry,
		bus,
		notify.NewEventBusNotifier(bus),
		tracer,
		engine.Config{
			MaxConcurrentRuns: command.Int("max-concurrent-runs"),
		},
	)

	var (
		feed      manager.MetricFeed
		queueOpts *redisqueue.Options
	)

	if redisURL := command.String("redis-url"); redisURL != "" {
		queueOpts = &redisqueue.Options{Addr: redisURL}
		feed = redisqueue.NewMetricFeed(logger, *queueOpts, command.String("metrics-queue"))
	}

	worker := schedule.NewWorker(logger, store.Schedules(), command.Duration("schedule-poll-interval"))
	triggerManager := manager.NewManager(logger, definitions, orchestrator, worker, subscriber, queueOpts, feed)

	if err := triggerManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start trigger manager: %w", err)
	}

	api := NewAPI(logger, definitions, orchestrator)
	app := api.App()

	go handleShutdown(logger, app, triggerManager, orchestrator)

	if err := app.Listen(fmt.Sprintf(":%d", command.Int("port"))); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

func handleShutdown(
	logger *slog.Logger,
	app *fiber.App,
	triggerManager *manager.Manager,
	orchestrator *engine.Orchestrator,
) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	logger.Info("Shutting down Maestro API")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := triggerManager.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping trigger manager", "error", err)
	}

	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down orchestrator", "error", err)
	}

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", "error", err)
	}

	os.Exit(0)
}
