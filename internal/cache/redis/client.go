// Package redis caches read-side analytics responses. The cache is strictly
// optional: every caller must work identically with it disabled.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/salesdata/backend/internal/metrics"
	"github.com/salesdata/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db, ttlSec int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttlSec <= 0 {
		ttlSec = 300
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{
		client: client,
		ttl:    time.Duration(ttlSec) * time.Second,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func key(resource, date string) string {
	return fmt.Sprintf("analytics:%s:%s", resource, date)
}

func (c *Client) SetAnalytics(ctx context.Context, resource, date string, response interface{}) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	err = c.client.Set(ctx, key(resource, date), data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set analytics cache: %w", err)
	}

	logger.Debug("Analytics response cached",
		zap.String("resource", resource),
		zap.String("date", date),
	)
	return nil
}

func (c *Client) GetAnalytics(ctx context.Context, resource, date string, response interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key(resource, date)).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues(resource).Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get analytics cache: %w", err)
	}

	if err := json.Unmarshal(data, response); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached response: %w", err)
	}

	metrics.CacheHits.WithLabelValues(resource).Inc()
	return true, nil
}

// InvalidateDate drops every cached response for the date. Called after an
// analysis run rewrites the date's derived tables.
func (c *Client) InvalidateDate(ctx context.Context, date string) error {
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("analytics:*:%s", date), 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Debug("Analytics cache invalidated", zap.String("date", date))
	return nil
}
