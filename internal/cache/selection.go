package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSelectionRepository keeps each buyer's checkout selection in a Redis
// set that expires after the session idle TTL.
type RedisSelectionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSelectionRepository(client *redis.Client, ttl time.Duration) *RedisSelectionRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSelectionRepository{client: client, ttl: ttl}
}

func (r *RedisSelectionRepository) Load(ctx context.Context, owner string) ([]int64, error) {
	members, err := r.client.SMembers(ctx, selectionKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid selection member %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *RedisSelectionRepository) Add(ctx context.Context, owner string, cartItemID int64) error {
	key := selectionKey(owner)
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, cartItemID)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis sadd failed: %w", err)
	}
	return nil
}

func (r *RedisSelectionRepository) Remove(ctx context.Context, owner string, cartItemID int64) error {
	if err := r.client.SRem(ctx, selectionKey(owner), cartItemID).Err(); err != nil {
		return fmt.Errorf("redis srem failed: %w", err)
	}
	return nil
}

func (r *RedisSelectionRepository) Clear(ctx context.Context, owner string) error {
	if err := r.client.Del(ctx, selectionKey(owner)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func selectionKey(owner string) string {
	return fmt.Sprintf("selection:%s", owner)
}
