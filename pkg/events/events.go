// Package events defines the engine lifecycle events published on the
// event bus for dashboards and external consumers.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/maestro-flow/maestro/pkg/models"
)

type EventType string

// Topic is the single bus topic carrying engine events.
const Topic = "maestro.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent        EventType = "run.started"
	RunCompletedEvent      EventType = "run.completed"
	RunFailedEvent         EventType = "run.failed"
	RunCancelledEvent      EventType = "run.cancelled"
	StepFinishedEvent      EventType = "run.step.finished"
	ApprovalRequestedEvent EventType = "approval.requested"
	ApprovalResolvedEvent  EventType = "approval.resolved"
	NotificationEvent      EventType = "notification.requested"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps identity and time for an event under construction.
func NewBaseEvent(eventType EventType, workflowID, runID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		RunID:      runID,
	}
}

type RunStarted struct {
	BaseEvent

	UseCaseID string `json:"use_case_id"`
	Version   string `json:"version"`
	TriggerID string `json:"trigger_id,omitempty"`
}

func (e RunStarted) GetType() EventType { return RunStartedEvent }

type RunCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType { return RunCompletedEvent }

type RunFailed struct {
	BaseEvent

	StepID    string           `json:"step_id,omitempty"`
	ErrorKind models.ErrorKind `json:"error_kind"`
	Error     string           `json:"error"`
	Escalated bool             `json:"escalated"`
	Duration  time.Duration    `json:"duration"`
}

func (e RunFailed) GetType() EventType { return RunFailedEvent }

type RunCancelled struct {
	BaseEvent
}

func (e RunCancelled) GetType() EventType { return RunCancelledEvent }

type StepFinished struct {
	BaseEvent

	StepID  string             `json:"step_id"`
	Outcome models.StepOutcome `json:"outcome"`
	Attempt int                `json:"attempt,omitempty"`
}

func (e StepFinished) GetType() EventType { return StepFinishedEvent }

type ApprovalRequested struct {
	BaseEvent

	StepID string `json:"step_id"`
}

func (e ApprovalRequested) GetType() EventType { return ApprovalRequestedEvent }

type ApprovalResolved struct {
	BaseEvent

	StepID   string                  `json:"step_id"`
	Decision models.ApprovalDecision `json:"decision"`
	Actor    string                  `json:"actor"`
}

func (e ApprovalResolved) GetType() EventType { return ApprovalResolvedEvent }

type NotificationRequested struct {
	BaseEvent

	Channels   []string `json:"channels"`
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
}

func (e NotificationRequested) GetType() EventType { return NotificationEvent }
