// Package progress streams research stage events to live subscribers over
// redis pub/sub while persisting every event to the job's timeline. The
// timeline row is the source of truth; the redis channel is a liveness
// optimization for connected clients.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/core"
	"github.com/Shillsphere/market-peak-pilot-sub000/internal/domain/model"
)

// channelFor names the per-job pub/sub channel.
func channelFor(jobID string) string {
	return "research:progress:" + jobID
}

// PublisherOptions groups dependencies for Publisher.
type PublisherOptions struct {
	Redis    redis.UniversalClient   // Required: pub/sub transport
	Timeline core.TimelineRepository // Required: persisted event log
	Logger   *slog.Logger            // Optional: structured logger
}

// Publisher implements core.ProgressPublisher over redis pub/sub with a
// persisted timeline behind it.
type Publisher struct {
	redis    redis.UniversalClient
	timeline core.TimelineRepository
	logger   *slog.Logger
}

// NewPublisher constructs a Publisher.
func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Timeline == nil {
		return nil, errors.New("timeline repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{redis: opts.Redis, timeline: opts.Timeline, logger: logger}, nil
}

// Publish appends the event to the persisted timeline, then broadcasts it
// to live subscribers. The durable write comes first: a client that misses
// the broadcast can always replay the timeline. A redis failure is logged,
// not returned, because the event is already durable.
func (p *Publisher) Publish(ctx context.Context, ev *model.StageEvent) error {
	if ev == nil || ev.JobID == "" {
		return errors.New("stage event requires a job id")
	}
	if err := p.timeline.Append(ctx, ev); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode stage event: %w", err)
	}
	if err := p.redis.Publish(ctx, channelFor(ev.JobID), payload).Err(); err != nil {
		p.logger.WarnContext(ctx, "publish stage event to redis",
			"job_id", ev.JobID, "step", ev.Step, "error", err)
	}
	return nil
}

// Subscribe opens a live event stream for one job. The returned cancel
// func closes the subscription and the channel.
func (p *Publisher) Subscribe(ctx context.Context, jobID string) (<-chan model.StageEvent, func(), error) {
	if jobID == "" {
		return nil, nil, errors.New("job id is required")
	}

	sub := p.redis.Subscribe(ctx, channelFor(jobID))
	// Force the subscription onto the wire before returning, so events
	// published after Subscribe returns are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe to progress channel: %w", err)
	}

	out := make(chan model.StageEvent, 16)
	done := make(chan struct{})

	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev model.StageEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					p.logger.WarnContext(ctx, "decode stage event",
						"job_id", jobID, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cancel := func() {
		close(done)
		_ = sub.Close()
	}
	return out, cancel, nil
}

var _ core.ProgressPublisher = (*Publisher)(nil)
