package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and a client pointing to it
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestQuoteCache_SetGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedisQuoteCache(client, 15*time.Minute)
	ctx := context.Background()

	quote := &domain.DeliveryQuote{SellerID: 10, Options: []domain.DeliveryOption{
		{OptionID: 1, Name: "JNE REG", Cost: 900000, ETALabel: "1-2"},
	}}
	require.NoError(t, c.Set(ctx, "42:5:10", quote))

	ttl := mr.TTL(quoteKey("42:5:10"))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.Less(t, ttl, 20*time.Minute)

	got, err := c.Get(ctx, "42:5:10")
	require.NoError(t, err)
	assert.Equal(t, quote, got)
}

func TestQuoteCache_Miss(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := NewRedisQuoteCache(client, 0)

	got, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, got)
}

func TestQuoteCache_InvalidJSON(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedisQuoteCache(client, 0)
	require.NoError(t, mr.Set(quoteKey("k"), `{"seller_id":`))

	_, err := c.Get(context.Background(), "k")
	require.ErrorContains(t, err, "unmarshal quote failed")
}

func TestQuoteCache_Expiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedisQuoteCache(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &domain.DeliveryQuote{SellerID: 1}))
	mr.FastForward(6 * time.Minute)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestQuoteCache_Delete(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedisQuoteCache(client, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &domain.DeliveryQuote{SellerID: 1}))
	require.NoError(t, c.Delete(ctx, "k"))
	assert.False(t, mr.Exists(quoteKey("k")))
}

func TestQuoteCache_RedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewRedisQuoteCache(client, 0)
	mr.Close()

	_, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSelectionRepository(t *testing.T) {
	client, mr := setupTestRedis(t)
	repo := NewRedisSelectionRepository(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, "42", 11))
	require.NoError(t, repo.Add(ctx, "42", 12))
	require.NoError(t, repo.Add(ctx, "7", 99))

	ids, err := repo.Load(ctx, "42")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{11, 12}, ids)
	assert.Equal(t, time.Hour, mr.TTL(selectionKey("42")))

	require.NoError(t, repo.Remove(ctx, "42", 11))
	ids, err = repo.Load(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []int64{12}, ids)

	require.NoError(t, repo.Clear(ctx, "42"))
	ids, err = repo.Load(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, ids)

	other, err := repo.Load(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, []int64{99}, other)
}

func TestSelectionRepository_BadMember(t *testing.T) {
	client, mr := setupTestRedis(t)
	repo := NewRedisSelectionRepository(client, 0)
	_, err := mr.SetAdd(selectionKey("42"), "not-a-number")
	require.NoError(t, err)

	_, err = repo.Load(context.Background(), "42")
	assert.Error(t, err)
}
