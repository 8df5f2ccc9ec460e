package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/maestro-flow/maestro/pkg/channels/gochannel"
	"github.com/maestro-flow/maestro/pkg/channels/kafka"
	"github.com/maestro-flow/maestro/pkg/eventbus"
)

// NewChannel creates the raw publisher/subscriber pair for the given
// provider. "gochannel" is in-process and needs no broker; "kafka" reads
// KAFKA_BROKERS. The subscriber is shared between the event bus and
// event trigger sources.
func NewChannel(provider, serviceName string, logger *slog.Logger) (message.Publisher, message.Subscriber) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return pub, sub
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create in-memory pub/sub: %w", err))
		}

		return pub, sub
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}

// NewEventBus wraps a channel in the typed event bus.
func NewEventBus(provider, serviceName string, logger *slog.Logger) (eventbus.EventBus, message.Subscriber) {
	pub, sub := NewChannel(provider, serviceName, logger)

	return eventbus.NewWatermillEventBus(pub, sub), sub
}
