package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
)

// RedisNotifier publishes notifications as JSON on a redis pub/sub channel.
type RedisNotifier struct {
	client  redis.Cmdable
	channel string
}

func NewRedisNotifier(client redis.Cmdable, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (r *RedisNotifier) Name() string { return "redis" }

func (r *RedisNotifier) Notify(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, string(payload)).Err()
}
