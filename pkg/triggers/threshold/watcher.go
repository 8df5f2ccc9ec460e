// Package threshold provides the metric threshold trigger source. Firing
// is edge-triggered: a run starts when the comparison transitions from
// false to true, and not again until the metric drops back below the
// threshold first. A stream sitting above the threshold fires once.
package threshold

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maestro-flow/maestro/pkg/models"
	"github.com/maestro-flow/maestro/pkg/triggers"
)

const sampleBuffer = 64

// MetricSample is one observation of a named metric.
type MetricSample struct {
	Metric string    `json:"metric"`
	Value  float64   `json:"value"`
	At     time.Time `json:"at,omitempty"`
}

// Watcher evaluates incoming samples against one threshold spec. Samples
// for other metrics are ignored, so a shared feed can be fanned out to
// every watcher.
type Watcher struct {
	logger     *slog.Logger
	workflowID string
	triggerID  string
	spec       models.ThresholdSpec

	samples chan MetricSample
	stopCh  chan struct{}
	wg      sync.WaitGroup

	breached bool
}

func NewWatcher(logger *slog.Logger, workflowID, triggerID string, spec models.ThresholdSpec) *Watcher {
	return &Watcher{
		logger: logger.With(
			"module", "threshold_trigger",
			"workflow_id", workflowID,
			"metric", spec.Metric,
		),
		workflowID: workflowID,
		triggerID:  triggerID,
		spec:       spec,
		samples:    make(chan MetricSample, sampleBuffer),
		stopCh:     make(chan struct{}),
	}
}

// Offer hands a sample to the watcher without blocking. Samples are
// dropped when the watcher's buffer is full.
func (w *Watcher) Offer(sample MetricSample) {
	select {
	case w.samples <- sample:
	default:
		w.logger.Warn("Dropping metric sample, watcher buffer full", "metric", sample.Metric)
	}
}

func (w *Watcher) Start(ctx context.Context, fire triggers.Callback) error {
	w.logger.Info("Starting threshold trigger",
		"operator", w.spec.Operator,
		"threshold", w.spec.Value,
	)

	w.wg.Add(1)

	go w.watch(ctx, fire)

	return nil
}

func (w *Watcher) watch(ctx context.Context, fire triggers.Callback) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case sample := <-w.samples:
			w.observe(ctx, sample, fire)
		}
	}
}

func (w *Watcher) observe(ctx context.Context, sample MetricSample, fire triggers.Callback) {
	if sample.Metric != w.spec.Metric {
		return
	}

	holds, err := w.spec.Operator.Holds(sample.Value, w.spec.Value)
	if err != nil {
		w.logger.Error("Failed to evaluate threshold", "error", err)

		return
	}

	crossed := holds && !w.breached
	w.breached = holds

	if !crossed {
		return
	}

	w.logger.Info("Threshold crossed",
		"value", sample.Value,
		"threshold", w.spec.Value,
	)

	request := triggers.RunRequest{
		WorkflowID: w.workflowID,
		TriggerID:  w.triggerID,
		InitialContext: map[string]any{
			"trigger_id": w.triggerID,
			"metric":     sample.Metric,
			"value":      sample.Value,
			"threshold":  w.spec.Value,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		},
	}

	if err := fire(ctx, request); err != nil {
		w.logger.Error("Failed to start run for threshold crossing", "error", err)
	}
}

func (w *Watcher) Stop(_ context.Context) error {
	w.logger.Info("Stopping threshold trigger")

	close(w.stopCh)
	w.wg.Wait()

	return nil
}
