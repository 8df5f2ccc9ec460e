// Package manager wires the triggers declared by registered workflow
// definitions to live sources and routes their firings into the
// orchestrator.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/maestro-flow/maestro/pkg/models"
	"github.com/maestro-flow/maestro/pkg/triggers"
	"github.com/maestro-flow/maestro/pkg/triggers/event"
	"github.com/maestro-flow/maestro/pkg/triggers/redisqueue"
	"github.com/maestro-flow/maestro/pkg/triggers/schedule"
	"github.com/maestro-flow/maestro/pkg/triggers/threshold"
	"github.com/maestro-flow/maestro/pkg/workflow"
)

// Starter starts runs. Satisfied by the orchestrator.
type Starter interface {
	Start(ctx context.Context, workflowID, version string, initialContext map[string]any) (*models.RunContext, error)
}

// MetricFeed streams metric samples for threshold watchers.
type MetricFeed interface {
	Samples(ctx context.Context) (<-chan threshold.MetricSample, error)
	Close() error
}

// Manager builds one source per declared trigger and owns their
// lifecycle. Event sources need a subscriber (or a Redis queue fallback)
// and threshold watchers a metric feed; triggers whose transport is not
// configured are skipped with a warning rather than failing startup.
type Manager struct {
	logger      *slog.Logger
	definitions *workflow.Repository
	starter     Starter
	worker      *schedule.Worker
	subscriber  message.Subscriber
	queueOpts   *redisqueue.Options
	feed        MetricFeed

	cancel   context.CancelFunc
	sources  []triggers.Source
	watchers []*threshold.Watcher
	wg       sync.WaitGroup
}

func NewManager(
	logger *slog.Logger,
	definitions *workflow.Repository,
	starter Starter,
	worker *schedule.Worker,
	subscriber message.Subscriber,
	queueOpts *redisqueue.Options,
	feed MetricFeed,
) *Manager {
	return &Manager{
		logger:      logger.With("module", "trigger_manager"),
		definitions: definitions,
		starter:     starter,
		worker:      worker,
		subscriber:  subscriber,
		queueOpts:   queueOpts,
		feed:        feed,
	}
}

// Start scans registered definitions and brings every declared trigger
// online.
func (m *Manager) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	defs, err := m.definitions.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list definitions: %w", err)
	}

	for _, def := range defs {
		if err := m.bind(ctx, def); err != nil {
			return err
		}
	}

	fire := m.fire()

	if err := m.worker.Start(ctx, fire); err != nil {
		return err
	}

	for _, source := range m.sources {
		if err := source.Start(ctx, fire); err != nil {
			return err
		}
	}

	if m.feed != nil && len(m.watchers) > 0 {
		samples, err := m.feed.Samples(ctx)
		if err != nil {
			return fmt.Errorf("failed to open metric feed: %w", err)
		}

		m.wg.Add(1)

		go m.dispatch(ctx, samples)
	}

	m.logger.Info("Trigger manager started",
		"definitions", len(defs),
		"sources", len(m.sources),
		"watchers", len(m.watchers),
	)

	return nil
}

// bind creates sources for one definition's triggers.
func (m *Manager) bind(ctx context.Context, def *models.WorkflowDefinition) error {
	for _, trigger := range def.Triggers {
		switch trigger.Type {
		case models.TriggerTypeSchedule:
			if err := m.worker.Sync(ctx, def, trigger); err != nil {
				return fmt.Errorf("workflow %s: %w", def.ID, err)
			}
		case models.TriggerTypeEvent:
			switch {
			case m.subscriber != nil:
				source := event.NewSource(m.logger, m.subscriber, trigger.Event.Topic, def.ID, trigger.ID)
				m.sources = append(m.sources, source)
			case m.queueOpts != nil:
				// No message bus subscriber: consume the topic as a Redis
				// list instead.
				source := redisqueue.NewSource(m.logger, *m.queueOpts, trigger.Event.Topic, def.ID, trigger.ID)
				m.sources = append(m.sources, source)
			default:
				m.logger.Warn("Skipping event trigger, no subscriber or queue configured",
					"workflow_id", def.ID,
					"trigger_id", trigger.ID,
				)
			}
		case models.TriggerTypeThreshold:
			if m.feed == nil {
				m.logger.Warn("Skipping threshold trigger, no metric feed configured",
					"workflow_id", def.ID,
					"trigger_id", trigger.ID,
				)

				continue
			}

			watcher := threshold.NewWatcher(m.logger, def.ID, trigger.ID, *trigger.Threshold)
			m.watchers = append(m.watchers, watcher)
			m.sources = append(m.sources, watcher)
		}
	}

	return nil
}

func (m *Manager) fire() triggers.Callback {
	return func(ctx context.Context, request triggers.RunRequest) error {
		run, err := m.starter.Start(ctx, request.WorkflowID, "", request.InitialContext)
		if err != nil {
			return err
		}

		m.logger.Info("Trigger started run",
			"trigger_id", request.TriggerID,
			"workflow_id", request.WorkflowID,
			"run_id", run.RunID,
		)

		return nil
	}
}

// dispatch fans the shared sample stream out to every watcher; each
// watcher filters by metric name.
func (m *Manager) dispatch(ctx context.Context, samples <-chan threshold.MetricSample) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}

			for _, watcher := range m.watchers {
				watcher.Offer(sample)
			}
		}
	}
}

// Stop shuts down all sources and waits for in-flight dispatches.
func (m *Manager) Stop(ctx context.Context) error {
	m.logger.Info("Stopping trigger manager")

	if m.cancel != nil {
		m.cancel()
	}

	if err := m.worker.Stop(ctx); err != nil {
		m.logger.Error("Error stopping schedule worker", "error", err)
	}

	for _, source := range m.sources {
		if err := source.Stop(ctx); err != nil {
			m.logger.Error("Error stopping trigger source", "error", err)
		}
	}

	if m.feed != nil {
		if err := m.feed.Close(); err != nil {
			m.logger.Error("Error closing metric feed", "error", err)
		}
	}

	m.wg.Wait()

	return nil
}
