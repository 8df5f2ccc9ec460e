// Package event provides the event trigger source: one run fired per
// message received on a subscribed topic.
package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/maestro-flow/maestro/pkg/triggers"
)

// Source subscribes to a topic and fires a run request for every message.
// The message payload, when it is a JSON object, becomes the run's
// initial context; anything else is passed through under "payload".
type Source struct {
	logger     *slog.Logger
	subscriber message.Subscriber
	topic      string
	workflowID string
	triggerID  string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewSource(logger *slog.Logger, subscriber message.Subscriber, topic, workflowID, triggerID string) *Source {
	return &Source{
		logger: logger.With(
			"module", "event_trigger",
			"topic", topic,
			"workflow_id", workflowID,
		),
		subscriber: subscriber,
		topic:      topic,
		workflowID: workflowID,
		triggerID:  triggerID,
		stopCh:     make(chan struct{}),
	}
}

func (s *Source) Start(ctx context.Context, fire triggers.Callback) error {
	s.logger.Info("Starting event trigger")

	messages, err := s.subscriber.Subscribe(ctx, s.topic)
	if err != nil {
		return err
	}

	s.wg.Add(1)

	go s.consume(ctx, messages, fire)

	return nil
}

func (s *Source) consume(ctx context.Context, messages <-chan *message.Message, fire triggers.Callback) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				s.logger.Info("Event subscription closed")

				return
			}

			request := triggers.RunRequest{
				WorkflowID:     s.workflowID,
				TriggerID:      s.triggerID,
				InitialContext: s.decode(msg),
			}

			if err := fire(ctx, request); err != nil {
				s.logger.Error("Failed to start run for event",
					"message_id", msg.UUID,
					"error", err,
				)
			}

			msg.Ack()
		}
	}
}

func (s *Source) decode(msg *message.Message) map[string]any {
	var payload map[string]any
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload == nil {
		// Non-object payloads, including JSON null, pass through under
		// "payload".
		payload = map[string]any{"payload": string(msg.Payload)}
	}

	payload["trigger_id"] = s.triggerID
	if payload["timestamp"] == nil {
		payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}

	return payload
}

func (s *Source) Stop(_ context.Context) error {
	s.logger.Info("Stopping event trigger")

	close(s.stopCh)
	s.wg.Wait()

	return nil
}
