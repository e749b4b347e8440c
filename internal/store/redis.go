package store

import (
	"context"
	"encoding/json"

	"disaster-alerts-go/internal/models"

	"github.com/redis/go-redis/v9"
)

const alertEventsChannel = "alert_events"

// EventBus fans newly stored alerts out to live listeners.
type EventBus interface {
	PublishAlert(ctx context.Context, a models.StoredAlert) error
	Subscribe(ctx context.Context) *redis.PubSub
}

// RedisBus publishes alert events over Redis pub/sub.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(opts *redis.Options) *RedisBus {
	return &RedisBus{client: redis.NewClient(opts)}
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBus) PublishAlert(ctx context.Context, a models.StoredAlert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, alertEventsChannel, data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context) *redis.PubSub {
	return b.client.Subscribe(ctx, alertEventsChannel)
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
