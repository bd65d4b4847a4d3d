package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"buswatch/internal/tracking"
)

// RedisETACache stores computed ETA snapshots in Redis with a fixed TTL, so
// near-identical computations within the window share one provider result
// across all instances of the service.
type RedisETACache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisETACache(client *redis.Client, ttl time.Duration) *RedisETACache {
	return &RedisETACache{client: client, ttl: ttl}
}

func (r *RedisETACache) Get(ctx context.Context, key string) ([]tracking.ETARecord, error) {
	val, err := r.client.Get(ctx, formatKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting eta snapshot: %w", err)
	}
	var etas []tracking.ETARecord
	if err := json.Unmarshal([]byte(val), &etas); err != nil {
		return nil, fmt.Errorf("unmarshalling eta snapshot: %w", err)
	}
	return etas, nil
}

func (r *RedisETACache) Set(ctx context.Context, key string, etas []tracking.ETARecord) error {
	data, err := json.Marshal(etas)
	if err != nil {
		return fmt.Errorf("marshalling eta snapshot: %w", err)
	}
	if err := r.client.Set(ctx, formatKey(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("setting eta snapshot: %w", err)
	}
	return nil
}

func formatKey(key string) string {
	return fmt.Sprintf("tracking:eta:%s", key)
}
