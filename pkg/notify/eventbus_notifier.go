package notify

import (
	"context"

	"github.com/maestro-flow/maestro/pkg/eventbus"
	"github.com/maestro-flow/maestro/pkg/events"
)

// EventBusNotifier publishes notification requests on the event bus so an
// external dispatcher (mail, chat, paging) can pick them up.
type EventBusNotifier struct {
	bus eventbus.EventPublisher
}

func NewEventBusNotifier(bus eventbus.EventPublisher) *EventBusNotifier {
	return &EventBusNotifier{bus: bus}
}

func (n *EventBusNotifier) Notify(ctx context.Context, channels, recipients []string, message string) error {
	event := events.NotificationRequested{
		BaseEvent:  events.NewBaseEvent(events.NotificationEvent, "", ""),
		Channels:   channels,
		Recipients: recipients,
		Message:    message,
	}

	return n.bus.Publish(ctx, event.ID, event)
}
