package notify

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisChannel = "dianabot.events"

// RedisPublisher publishes notifications on a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     *goredis.Client
	channel string
}

// NewRedisPublisher connects to addr and verifies the connection with a
// short ping.
func NewRedisPublisher(ctx context.Context, addr, channel string) (*RedisPublisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis: address is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisPublisherFromClient(rdb, channel), nil
}

// NewRedisPublisherFromClient wraps an existing client without pinging it.
func NewRedisPublisherFromClient(rdb *goredis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = defaultRedisChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Name() string { return "redis" }

// Available pings the server.
func (p *RedisPublisher) Available(ctx context.Context) bool {
	if p == nil || p.rdb == nil {
		return false
	}
	return p.rdb.Ping(ctx).Err() == nil
}

func (p *RedisPublisher) Publish(ctx context.Context, n Notification) error {
	body, err := n.Encode()
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, body).Err()
}

func (p *RedisPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
