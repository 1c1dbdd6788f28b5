package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus is a Bus on Redis Pub/Sub, used when several API instances share
// presence traffic.
type RedisBus struct {
	client *redis.Client
	buffer int
	logger *slog.Logger
}

var _ Bus = (*RedisBus)(nil)

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(ctx context.Context, addr, password string, db, buffer int, logger *slog.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{client: client, buffer: buffer, logger: logger.With("component", "redis_bus")}, nil
}

// Join subscribes to topic and waits for the subscription to be confirmed.
func (b *RedisBus) Join(ctx context.Context, topic string) (Conn, error) {
	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	c := &redisConn{
		bus:      b,
		topic:    topic,
		ps:       ps,
		messages: make(chan []byte, b.buffer),
		done:     make(chan struct{}),
	}
	go c.pump()
	return c, nil
}

// Close shuts the Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisConn struct {
	bus       *RedisBus
	topic     string
	ps        *redis.PubSub
	messages  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *redisConn) pump() {
	defer close(c.messages)
	ch := c.ps.Channel()
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case c.messages <- []byte(msg.Payload):
			default:
				c.bus.logger.Debug("dropping presence message", "topic", c.topic)
			}
		}
	}
}

func (c *redisConn) Publish(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return c.bus.client.Publish(ctx, c.topic, payload).Err()
}

func (c *redisConn) Messages() <-chan []byte { return c.messages }

func (c *redisConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ps.Close()
	})
	return err
}
