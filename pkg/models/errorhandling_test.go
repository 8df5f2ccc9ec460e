package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyTotalAttempts(t *testing.T) {
	tests := []struct {
		name     string
		policy   *RetryPolicy
		expected int
	}{
		{name: "nil policy means one attempt", policy: nil, expected: 1},
		{name: "zero attempts means one attempt", policy: &RetryPolicy{Attempts: 0}, expected: 1},
		{name: "attempts counts total tries", policy: &RetryPolicy{Attempts: 3}, expected: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.policy.TotalAttempts())
		})
	}
}

func TestRetryPolicyBackoffDelay(t *testing.T) {
	policy := &RetryPolicy{
		Attempts:          4,
		Delay:             Duration(100 * time.Millisecond),
		BackoffMultiplier: 2,
	}

	minDelay := 10 * time.Millisecond

	assert.Equal(t, time.Duration(0), policy.BackoffDelay(1, minDelay))
	assert.Equal(t, 100*time.Millisecond, policy.BackoffDelay(2, minDelay))
	assert.Equal(t, 200*time.Millisecond, policy.BackoffDelay(3, minDelay))
	assert.Equal(t, 400*time.Millisecond, policy.BackoffDelay(4, minDelay))
}

func TestRetryPolicyBackoffDelayFloor(t *testing.T) {
	policy := &RetryPolicy{Attempts: 3, Delay: 0, BackoffMultiplier: 2}

	assert.Equal(t, 100*time.Millisecond, policy.BackoffDelay(2, 100*time.Millisecond))
}

func TestRetryPolicyBackoffDelayWithoutMultiplier(t *testing.T) {
	policy := &RetryPolicy{Attempts: 3, Delay: Duration(50 * time.Millisecond)}

	assert.Equal(t, 50*time.Millisecond, policy.BackoffDelay(2, time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, policy.BackoffDelay(3, time.Millisecond))
}
