package redisqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/maestro-flow/maestro/pkg/triggers/threshold"
)

const feedBuffer = 256

// MetricFeed consumes metric samples from a Redis list and exposes them
// as a channel for threshold watchers. Documents must be JSON objects
// with "metric" and "value" fields; anything else is dropped.
type MetricFeed struct {
	logger *slog.Logger
	opts   Options
	queue  string

	client *redis.Client
	out    chan threshold.MetricSample
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewMetricFeed(logger *slog.Logger, opts Options, queue string) *MetricFeed {
	return &MetricFeed{
		logger: logger.With("module", "metric_feed", "queue", queue),
		opts:   opts,
		queue:  queue,
		out:    make(chan threshold.MetricSample, feedBuffer),
		stopCh: make(chan struct{}),
	}
}

// Samples connects and starts the consumer. The returned channel closes
// when the feed stops.
func (f *MetricFeed) Samples(ctx context.Context) (<-chan threshold.MetricSample, error) {
	client, err := newClient(ctx, f.opts)
	if err != nil {
		return nil, err
	}

	f.client = client

	f.wg.Add(1)

	go f.consume(ctx)

	return f.out, nil
}

func (f *MetricFeed) consume(ctx context.Context) {
	defer f.wg.Done()
	defer close(f.out)

	for {
		select {
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			payload, ok, err := pop(ctx, f.client, f.queue)
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				f.logger.Error("Failed to consume metric sample", "error", err)
				time.Sleep(1 * time.Second)

				continue
			}

			if !ok {
				continue
			}

			var sample threshold.MetricSample
			if err := json.Unmarshal([]byte(payload), &sample); err != nil || sample.Metric == "" {
				f.logger.Warn("Dropping malformed metric sample", "payload", payload)

				continue
			}

			if sample.At.IsZero() {
				sample.At = time.Now().UTC()
			}

			select {
			case f.out <- sample:
			default:
				f.logger.Warn("Dropping metric sample, feed buffer full", "metric", sample.Metric)
			}
		}
	}
}

func (f *MetricFeed) Close() error {
	close(f.stopCh)
	f.wg.Wait()

	if f.client != nil {
		return f.client.Close()
	}

	return nil
}
