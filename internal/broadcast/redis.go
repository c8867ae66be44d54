package broadcast

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/x5uw/SyncRoom/internal/core"
)

// Redis fans packets out over Redis pub/sub, one channel per room.
type Redis struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to addr, which is either host:port or a redis:// URL.
func OpenRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		var err error
		opts, err = redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	} else {
		if addr == "" {
			addr = "localhost:6379"
		}
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedis(client, prefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (m *Redis) Publish(ctx context.Context, roomID string, p core.Packet) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	if err := m.client.Publish(ctx, Channel(m.prefix, roomID), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe opens a dedicated pub/sub connection for roomID. The
// subscription is confirmed before Subscribe returns.
func (m *Redis) Subscribe(ctx context.Context, roomID string, h Handler) (Unsubscribe, error) {
	channel := Channel(m.prefix, roomID)
	pubsub := m.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			dispatch("redis", roomID, []byte(msg.Payload), h)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = pubsub.Close()
			<-done
		})
	}, nil
}

func (m *Redis) Close() error {
	return m.client.Close()
}

var _ Medium = (*Redis)(nil)
