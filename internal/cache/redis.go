package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

func NewRedisQuoteCache(client *redis.Client, baseTTL time.Duration) *RedisQuoteCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisQuoteCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

// RedisQuoteCache stores delivery quotes as JSON with a jittered TTL so
// entries written together do not expire together.
type RedisQuoteCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisQuoteCache) Get(ctx context.Context, key string) (*domain.DeliveryQuote, error) {
	data, err := r.client.Get(ctx, quoteKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var quote domain.DeliveryQuote
	if err := json.Unmarshal(data, &quote); err != nil {
		return nil, fmt.Errorf("unmarshal quote failed: %w", err)
	}
	return &quote, nil
}

func (r *RedisQuoteCache) Set(ctx context.Context, key string, quote *domain.DeliveryQuote) error {
	payload, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("marshal quote failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := r.client.Set(ctx, quoteKey(key), payload, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisQuoteCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, quoteKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func quoteKey(key string) string {
	return fmt.Sprintf("quote:%s", key)
}
