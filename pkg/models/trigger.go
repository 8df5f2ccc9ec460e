package models

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

// TriggerType discriminates the trigger variants.
type TriggerType string

const (
	TriggerTypeSchedule  TriggerType = "schedule"
	TriggerTypeEvent     TriggerType = "event"
	TriggerTypeThreshold TriggerType = "threshold"
)

var (
	ErrTriggerSpecMissing = errors.New("trigger variant configuration missing")
	ErrUnknownCompareOp   = errors.New("unknown comparison operator")
	ErrInvalidCron        = errors.New("invalid cron expression")
	ErrEventTopicRequired = errors.New("event trigger topic is required")
	ErrMetricNameRequired = errors.New("threshold trigger metric name is required")
)

// ScheduleSpec fires on a cron schedule (standard 5-field format).
type ScheduleSpec struct {
	Cron string `json:"cron" validate:"required"`
}

// EventSpec fires once per event received on the named topic.
type EventSpec struct {
	Topic string `json:"topic" validate:"required"`
}

// CompareOp is the closed operator set for threshold triggers.
type CompareOp string

const (
	CompareGt  CompareOp = ">"
	CompareGte CompareOp = ">="
	CompareLt  CompareOp = "<"
	CompareLte CompareOp = "<="
	CompareEq  CompareOp = "=="
	CompareNe  CompareOp = "!="
)

// Holds reports whether value satisfies the operator against threshold.
func (op CompareOp) Holds(value, threshold float64) (bool, error) {
	switch op {
	case CompareGt:
		return value > threshold, nil
	case CompareGte:
		return value >= threshold, nil
	case CompareLt:
		return value < threshold, nil
	case CompareLte:
		return value <= threshold, nil
	case CompareEq:
		return value == threshold, nil
	case CompareNe:
		return value != threshold, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownCompareOp, op)
	}
}

// ThresholdSpec fires when operator(value, threshold) transitions from false
// to true over the incoming metric sample stream (edge-triggered).
type ThresholdSpec struct {
	Metric   string    `json:"metric"   validate:"required"`
	Operator CompareOp `json:"operator" validate:"required,oneof=> >= < <= == !="`
	Value    float64   `json:"value"`
}

// Trigger is a tagged variant owned by a workflow definition. Exactly the
// spec matching Type must be set.
type Trigger struct {
	ID        string         `json:"id"   validate:"required"`
	Type      TriggerType    `json:"type" validate:"required,oneof=schedule event threshold"`
	Schedule  *ScheduleSpec  `json:"schedule,omitempty"`
	Event     *EventSpec     `json:"event,omitempty"`
	Threshold *ThresholdSpec `json:"threshold,omitempty"`
}

// Validate checks variant presence and variant-specific well-formedness.
func (t *Trigger) Validate() error {
	switch t.Type {
	case TriggerTypeSchedule:
		if t.Schedule == nil {
			return fmt.Errorf("trigger %s: %w", t.ID, ErrTriggerSpecMissing)
		}

		if _, err := cron.ParseStandard(t.Schedule.Cron); err != nil {
			return fmt.Errorf("trigger %s: %w: %w", t.ID, ErrInvalidCron, err)
		}
	case TriggerTypeEvent:
		if t.Event == nil {
			return fmt.Errorf("trigger %s: %w", t.ID, ErrTriggerSpecMissing)
		}

		if t.Event.Topic == "" {
			return fmt.Errorf("trigger %s: %w", t.ID, ErrEventTopicRequired)
		}
	case TriggerTypeThreshold:
		if t.Threshold == nil {
			return fmt.Errorf("trigger %s: %w", t.ID, ErrTriggerSpecMissing)
		}

		if t.Threshold.Metric == "" {
			return fmt.Errorf("trigger %s: %w", t.ID, ErrMetricNameRequired)
		}

		if _, err := t.Threshold.Operator.Holds(0, 0); err != nil {
			return fmt.Errorf("trigger %s: %w", t.ID, err)
		}
	default:
		return fmt.Errorf("trigger %s: unknown trigger type %q", t.ID, t.Type)
	}

	return nil
}
