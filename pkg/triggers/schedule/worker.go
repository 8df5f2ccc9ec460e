// Package schedule provides the cron trigger source. Due times are
// persisted, so a schedule that came due while the engine was down fires
// exactly once on startup and then resumes its cadence. Missed ticks
// never burst: advancing always computes the next fire from now.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maestro-flow/maestro/pkg/models"
	"github.com/maestro-flow/maestro/pkg/persistence"
	"github.com/maestro-flow/maestro/pkg/triggers"
)

// DefaultPollInterval is how often due schedules are checked when no
// interval is configured.
const DefaultPollInterval = 5 * time.Second

// Worker polls the schedule store and fires a run request for every
// schedule whose due time has passed.
type Worker struct {
	logger    *slog.Logger
	schedules persistence.ScheduleRepository
	interval  time.Duration

	fire   triggers.Callback
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewWorker(logger *slog.Logger, schedules persistence.ScheduleRepository, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Worker{
		logger:    logger.With("module", "schedule_worker"),
		schedules: schedules,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Sync ensures a persisted schedule exists for the trigger. An existing
// entry keeps its due time unless the cron expression changed, in which
// case the due time is recomputed from now.
func (w *Worker) Sync(ctx context.Context, def *models.WorkflowDefinition, trigger *models.Trigger) error {
	id := def.ID + "/" + trigger.ID

	existing, err := w.schedules.ByID(ctx, id)
	if err == nil {
		if existing.CronExpression == trigger.Schedule.Cron {
			return nil
		}

		existing.CronExpression = trigger.Schedule.Cron
		if err := existing.Advance(); err != nil {
			return fmt.Errorf("failed to advance schedule %s: %w", id, err)
		}

		return w.schedules.Save(ctx, existing)
	}

	entry, err := models.NewSchedule(id, def.ID, trigger.ID, trigger.Schedule.Cron)
	if err != nil {
		return fmt.Errorf("failed to create schedule %s: %w", id, err)
	}

	w.logger.Info("Schedule registered",
		"schedule_id", id,
		"cron", entry.CronExpression,
		"next_due_at", entry.NextDueAt,
	)

	return w.schedules.Save(ctx, entry)
}

func (w *Worker) Start(ctx context.Context, fire triggers.Callback) error {
	w.logger.Info("Starting schedule worker", "poll_interval", w.interval)
	w.fire = fire

	w.wg.Add(1)

	go w.poll(ctx)

	return nil
}

func (w *Worker) poll(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Fire anything already due before the first tick: this is the
	// catch-up path after a restart.
	w.fireDue(ctx)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.fireDue(ctx)
		}
	}
}

func (w *Worker) fireDue(ctx context.Context) {
	due, err := w.schedules.Due(ctx, time.Now().UTC())
	if err != nil {
		w.logger.Error("Failed to query due schedules", "error", err)

		return
	}

	for _, entry := range due {
		// Advance before firing so a slow run cannot cause a double fire
		// on the next poll.
		if err := entry.Advance(); err != nil {
			w.logger.Error("Failed to advance schedule", "schedule_id", entry.ID, "error", err)

			continue
		}

		if err := w.schedules.Save(ctx, entry); err != nil {
			w.logger.Error("Failed to save advanced schedule", "schedule_id", entry.ID, "error", err)

			continue
		}

		w.logger.Info("Schedule fired",
			"schedule_id", entry.ID,
			"workflow_id", entry.WorkflowID,
			"next_due_at", entry.NextDueAt,
		)

		request := triggers.RunRequest{
			WorkflowID: entry.WorkflowID,
			TriggerID:  entry.TriggerID,
			InitialContext: map[string]any{
				"trigger_id":   entry.TriggerID,
				"scheduled_at": time.Now().UTC().Format(time.RFC3339),
			},
		}

		if err := w.fire(ctx, request); err != nil {
			w.logger.Error("Failed to start run for schedule",
				"schedule_id", entry.ID,
				"workflow_id", entry.WorkflowID,
				"error", err,
			)
		}
	}
}

func (w *Worker) Stop(_ context.Context) error {
	w.logger.Info("Stopping schedule worker")

	close(w.stopCh)
	w.wg.Wait()

	return nil
}
