package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-flow/maestro/pkg/channels/gochannel"
	"github.com/maestro-flow/maestro/pkg/eventbus"
	"github.com/maestro-flow/maestro/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestPublishDeliversToRegisteredHandler(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan any, 1)
	err := bus.Handle(events.RunCompletedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	sent := events.RunCompleted{
		BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, "wf-1", "run-1"),
		Duration:  2 * time.Second,
	}
	require.NoError(t, bus.Publish(ctx, "run-1", sent))

	select {
	case event := <-received:
		completed, ok := event.(*events.RunCompleted)
		require.True(t, ok)
		assert.Equal(t, "wf-1", completed.WorkflowID)
		assert.Equal(t, "run-1", completed.RunID)
		assert.Equal(t, 2*time.Second, completed.Duration)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestUnhandledEventTypesAreAcked(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan any, 2)
	err := bus.Handle(events.RunFailedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	started := events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, "wf-1", "run-1"),
		UseCaseID: "disk-cleanup",
		Version:   "1.0.0",
	}
	require.NoError(t, bus.Publish(ctx, "run-1", started))

	failed := events.RunFailed{
		BaseEvent: events.NewBaseEvent(events.RunFailedEvent, "wf-1", "run-1"),
		StepID:    "remediate",
		Error:     "restart refused",
	}
	require.NoError(t, bus.Publish(ctx, "run-1", failed))

	select {
	case event := <-received:
		got, ok := event.(*events.RunFailed)
		require.True(t, ok)
		assert.Equal(t, "remediate", got.StepID)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	select {
	case event := <-received:
		t.Fatalf("unexpected extra delivery: %#v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGenerateIDIsUnique(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
