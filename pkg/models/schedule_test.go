package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedule(t *testing.T) {
	schedule, err := NewSchedule("wf-1/cron-1", "wf-1", "cron-1", "*/5 * * * *")
	require.NoError(t, err)

	assert.True(t, schedule.Active)
	assert.True(t, schedule.NextDueAt.After(time.Now().UTC()))
}

func TestNewScheduleInvalidCron(t *testing.T) {
	_, err := NewSchedule("wf-1/cron-1", "wf-1", "cron-1", "not a cron")
	require.Error(t, err)
}

func TestScheduleIsDue(t *testing.T) {
	schedule := &Schedule{
		ID:             "wf-1/cron-1",
		WorkflowID:     "wf-1",
		CronExpression: "* * * * *",
		NextDueAt:      time.Now().UTC().Add(-time.Hour),
		Active:         true,
	}

	assert.True(t, schedule.IsDue(time.Now().UTC()))

	schedule.Active = false
	assert.False(t, schedule.IsDue(time.Now().UTC()))
}

func TestScheduleAdvanceCollapsesMissedTicks(t *testing.T) {
	// A minutely schedule that last fired an hour ago has sixty missed
	// ticks; advancing must land strictly in the future, not replay them.
	schedule := &Schedule{
		ID:             "wf-1/cron-1",
		WorkflowID:     "wf-1",
		TriggerID:      "cron-1",
		CronExpression: "* * * * *",
		NextDueAt:      time.Now().UTC().Add(-time.Hour),
		Active:         true,
	}

	require.NoError(t, schedule.Advance())

	assert.True(t, schedule.NextDueAt.After(time.Now().UTC()))
	assert.False(t, schedule.IsDue(time.Now().UTC()))
}

func TestScheduleValidate(t *testing.T) {
	valid := &Schedule{ID: "s1", WorkflowID: "wf-1", CronExpression: "0 * * * *"}
	require.NoError(t, valid.Validate())

	missing := &Schedule{ID: "s1"}
	assert.ErrorIs(t, missing.Validate(), ErrInvalidSchedule)

	badCron := &Schedule{ID: "s1", WorkflowID: "wf-1", CronExpression: "nope"}
	assert.Error(t, badCron.Validate())
}
