package redisqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/maestro-flow/maestro/pkg/triggers"
)

// Source fires one run per document popped from a Redis list. JSON
// object payloads become the run's initial context.
type Source struct {
	logger     *slog.Logger
	opts       Options
	queue      string
	workflowID string
	triggerID  string

	client *redis.Client
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewSource(logger *slog.Logger, opts Options, queue, workflowID, triggerID string) *Source {
	return &Source{
		logger: logger.With(
			"module", "redis_queue_trigger",
			"queue", queue,
			"workflow_id", workflowID,
		),
		opts:       opts,
		queue:      queue,
		workflowID: workflowID,
		triggerID:  triggerID,
		stopCh:     make(chan struct{}),
	}
}

func (s *Source) Start(ctx context.Context, fire triggers.Callback) error {
	s.logger.Info("Starting Redis queue trigger")

	client, err := newClient(ctx, s.opts)
	if err != nil {
		return err
	}

	s.client = client

	s.wg.Add(1)

	go s.consume(ctx, fire)

	return nil
}

func (s *Source) consume(ctx context.Context, fire triggers.Callback) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			payload, ok, err := pop(ctx, s.client, s.queue)
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				s.logger.Error("Failed to consume queue message", "error", err)
				time.Sleep(1 * time.Second)

				continue
			}

			if !ok {
				continue
			}

			if err := fire(ctx, s.request(payload)); err != nil {
				s.logger.Error("Failed to start run for queue message", "error", err)
			}
		}
	}
}

func (s *Source) request(payload string) triggers.RunRequest {
	var initialContext map[string]any
	if err := json.Unmarshal([]byte(payload), &initialContext); err != nil || initialContext == nil {
		// Non-object payloads, including JSON null, pass through under
		// "payload".
		initialContext = map[string]any{"payload": payload}
	}

	initialContext["trigger_id"] = s.triggerID
	if initialContext["timestamp"] == nil {
		initialContext["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}

	return triggers.RunRequest{
		WorkflowID:     s.workflowID,
		TriggerID:      s.triggerID,
		InitialContext: initialContext,
	}
}

func (s *Source) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Redis queue trigger")

	close(s.stopCh)
	s.wg.Wait()

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Error("Error closing Redis client", "error", err)
		}
	}

	return nil
}
