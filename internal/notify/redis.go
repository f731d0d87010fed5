package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis pub/sub backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisNotifier publishes play updates over Redis pub/sub.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(cfg RedisConfig) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisNotifier{client: client}, nil
}

// NewRedisNotifierWithClient wraps an existing client, mainly for tests.
func NewRedisNotifierWithClient(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := n.client.Publish(ctx, Channel(msg.Signature), data).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", msg.Kind, Channel(msg.Signature), err)
	}
	return nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
