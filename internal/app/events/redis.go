package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// DefaultChannel is the Redis channel notifications are published on.
const DefaultChannel = "lottery:events"

// Publisher is the subset of the Redis client used for fan-out.
// *redis.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher forwards notifications to a Redis pub/sub channel so front
// ends and monitors outside the process can follow the lottery.
type RedisPublisher struct {
	client  Publisher
	channel string
	timeout time.Duration
	log     *logger.Logger
}

// NewRedisPublisher builds a publisher. An empty channel uses DefaultChannel.
func NewRedisPublisher(client Publisher, channel string, log *logger.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = logger.NewDefault("events-redis")
	}
	return &RedisPublisher{client: client, channel: channel, timeout: 2 * time.Second, log: log}
}

// Handler adapts the publisher for Bus.Subscribe.
func (p *RedisPublisher) Handler() Handler {
	return func(n Notification) {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		p.Notify(ctx, n)
	}
}

// Notify publishes the JSON form of n. Failures are logged, never returned:
// consumers are push-only.
func (p *RedisPublisher) Notify(ctx context.Context, n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		p.log.WithError(err).Warn("encode notification")
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.WithError(err).
			WithField("channel", p.channel).
			WithField("type", n.Type).
			Warn("publish notification failed")
	}
}
