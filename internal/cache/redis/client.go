package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ecommerce-chatbot/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(ctx context.Context, host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

// NewFromRedis wraps an existing go-redis client.
func NewFromRedis(client *redis.Client) *Client {
	return &Client{client: client}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) SetEmbedding(ctx context.Context, key string, embedding []float32, ttl time.Duration) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	if err := c.client.Set(ctx, embeddingKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, embeddingKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	return embedding, true, nil
}

// InvalidateEmbeddings drops every cached vector, e.g. after switching
// embedding models.
func (c *Client) InvalidateEmbeddings(ctx context.Context) (int, error) {
	deleted := 0
	iter := c.client.Scan(ctx, 0, "embedding:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Embedding cache invalidated", zap.Int("deleted", deleted))
	return deleted, nil
}

func (c *Client) IncrementRouteCount(ctx context.Context, route string) error {
	return c.client.Incr(ctx, fmt.Sprintf("route_count:%s", route)).Err()
}

func (c *Client) GetRouteCount(ctx context.Context, route string) (int64, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("route_count:%s", route)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

func embeddingKey(key string) string {
	return "embedding:" + key
}
