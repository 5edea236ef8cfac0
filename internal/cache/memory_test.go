package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryCache(t *testing.T, ttl time.Duration) (*MemoryQuoteCache, *time.Time) {
	c := NewMemoryQuoteCache(ttl)
	t.Cleanup(c.Close)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestMemoryQuoteCache_SetGet(t *testing.T) {
	c, _ := newTestMemoryCache(t, time.Minute)
	ctx := context.Background()

	quote := &domain.DeliveryQuote{SellerID: 10, Options: []domain.DeliveryOption{
		{OptionID: 1, Name: "JNE REG", Cost: 900000},
	}}
	require.NoError(t, c.Set(ctx, "42:5:10", quote))

	got, err := c.Get(ctx, "42:5:10")
	require.NoError(t, err)
	assert.Equal(t, quote, got)
}

func TestMemoryQuoteCache_Miss(t *testing.T) {
	c, _ := newTestMemoryCache(t, time.Minute)

	_, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryQuoteCache_Expiry(t *testing.T) {
	c, now := newTestMemoryCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &domain.DeliveryQuote{SellerID: 1}))

	*now = now.Add(59 * time.Second)
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	*now = now.Add(time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.Equal(t, 1, c.removeExpired())
	assert.Equal(t, 0, c.Len())
}

func TestMemoryQuoteCache_Delete(t *testing.T) {
	c, _ := newTestMemoryCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &domain.DeliveryQuote{SellerID: 1}))
	require.NoError(t, c.Delete(ctx, "k"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryQuoteCache_ReturnsCopy(t *testing.T) {
	c, _ := newTestMemoryCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &domain.DeliveryQuote{SellerID: 1}))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	got.SellerID = 99

	again, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.SellerID)
}

func TestMemoryQuoteCache_CloseTwice(t *testing.T) {
	c := NewMemoryQuoteCache(time.Minute)
	c.Close()
	assert.NotPanics(t, c.Close)
}

func TestMemorySelectionRepository(t *testing.T) {
	repo := NewMemorySelectionRepository()
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, "buyer-1", 3))
	require.NoError(t, repo.Add(ctx, "buyer-1", 1))
	require.NoError(t, repo.Add(ctx, "buyer-2", 7))

	ids, err := repo.Load(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)

	require.NoError(t, repo.Remove(ctx, "buyer-1", 3))
	ids, err = repo.Load(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	require.NoError(t, repo.Clear(ctx, "buyer-1"))
	ids, err = repo.Load(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = repo.Load(ctx, "buyer-2")
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, ids)
}

func TestMemorySelectionRepository_ConcurrentAccess(t *testing.T) {
	repo := NewMemorySelectionRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_ = repo.Add(ctx, "buyer", id)
		}(i)
	}
	wg.Wait()

	ids, err := repo.Load(ctx, "buyer")
	require.NoError(t, err)
	assert.Len(t, ids, 50)
}
