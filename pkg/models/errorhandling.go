package models

import (
	"math"
	"time"
)

// RetryPolicy configures retry behavior for a step. Attempts counts total
// tries including the first: attempts=3 performs at most two retries after
// the initial invocation. Zero or a nil policy means exactly one attempt.
type RetryPolicy struct {
	Attempts          int      `json:"attempts" validate:"min=0"`
	Delay             Duration `json:"delay,omitempty"`
	BackoffMultiplier float64  `json:"backoff_multiplier,omitempty" validate:"omitempty,gte=1"`
}

// TotalAttempts returns how many times the step may be tried in total.
func (p *RetryPolicy) TotalAttempts() int {
	if p == nil || p.Attempts < 1 {
		return 1
	}

	return p.Attempts
}

// BackoffDelay returns the wait before the given attempt (2-based: the delay
// preceding attempt N is delay * multiplier^(N-2)). minDelay is a floor so
// sub-millisecond delays in definitions cannot hot-loop the engine.
func (p *RetryPolicy) BackoffDelay(attempt int, minDelay time.Duration) time.Duration {
	if p == nil || attempt < 2 {
		return 0
	}

	multiplier := p.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := time.Duration(float64(p.Delay.Std()) * math.Pow(multiplier, float64(attempt-2)))
	if delay < minDelay {
		delay = minDelay
	}

	return delay
}

// NotificationPolicy names where failure notifications go. Dispatch is
// best-effort and never affects run status.
type NotificationPolicy struct {
	Channels   []string `json:"channels,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
}

// ErrorHandling is the per-step failure policy.
type ErrorHandling struct {
	Retry        *RetryPolicy        `json:"retry,omitempty"`
	Escalate     bool                `json:"escalate,omitempty"`
	Notification *NotificationPolicy `json:"notification,omitempty"`
}
