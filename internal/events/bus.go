// Package events broadcasts generation progress over Redis pub/sub.
// Events are transient: a subscriber that is not listening when an event is
// published never sees it, and job state of record lives in the database.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/devforge-dev/devforge/internal/cache"
	"github.com/devforge-dev/devforge/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Bus publishes and subscribes to per-job generation events.
type Bus interface {
	// Publish sends an event to the job's channel. Publishing to a channel
	// with no subscribers succeeds and is silently dropped.
	Publish(ctx context.Context, event models.GenerationEvent) error

	// Subscribe starts listening on the job's channel. The returned stop
	// function closes the subscription and the channel; it is safe to call
	// more than once.
	Subscribe(ctx context.Context, jobID string) (<-chan models.GenerationEvent, func(), error)
}

// RedisBus is the production Bus backed by Redis pub/sub.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, event models.GenerationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, cache.GenerationChannel(event.JobID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, jobID string) (<-chan models.GenerationEvent, func(), error) {
	sub := b.client.Subscribe(ctx, cache.GenerationChannel(jobID))

	// Force the SUBSCRIBE to complete so a Publish racing with Subscribe
	// cannot slip past an unregistered listener.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan models.GenerationEvent)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var event models.GenerationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Warn("dropping undecodable generation event",
					"job_id", jobID, "error", err)
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() { _ = sub.Close() }
	return out, stop, nil
}

var _ Bus = (*RedisBus)(nil)
