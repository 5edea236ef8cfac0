package delivery

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/apperror"
	"github.com/fjod/go_cart/storefront-service/internal/cache"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	m       sync.Mutex
	quotes  map[int64]domain.DeliveryQuote
	fail    map[int64]error
	calls   map[int64]int
	gate    chan struct{}
	started chan int64
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		quotes: map[int64]domain.DeliveryQuote{
			1: {Options: []domain.DeliveryOption{{OptionID: 11, Cost: 1000}, {OptionID: 12, Cost: 2000}}},
			2: {Options: []domain.DeliveryOption{{OptionID: 21, Cost: 500}}},
			3: {Options: []domain.DeliveryOption{{OptionID: 31, Cost: 700}}},
		},
		fail:  make(map[int64]error),
		calls: make(map[int64]int),
	}
}

func (m *mockFetcher) GetDeliveryOptions(ctx context.Context, sellerID int64) (domain.DeliveryQuote, error) {
	m.m.Lock()
	m.calls[sellerID]++
	gate, started := m.gate, m.started
	m.m.Unlock()

	if started != nil {
		started <- sellerID
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.DeliveryQuote{}, ctx.Err()
		}
	}

	m.m.Lock()
	defer m.m.Unlock()
	if err := m.fail[sellerID]; err != nil {
		return domain.DeliveryQuote{}, err
	}
	return m.quotes[sellerID], nil
}

func (m *mockFetcher) callCount(sellerID int64) int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.calls[sellerID]
}

type mapCache struct {
	m     sync.Mutex
	items map[string]domain.DeliveryQuote
}

func (c *mapCache) Get(_ context.Context, key string) (*domain.DeliveryQuote, error) {
	c.m.Lock()
	defer c.m.Unlock()
	q, ok := c.items[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return &q, nil
}

func (c *mapCache) Set(_ context.Context, key string, q *domain.DeliveryQuote) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.items[key] = *q
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.items, key)
	return nil
}

var serverErr = &apperror.APIError{Status: http.StatusInternalServerError, Errors: apperror.ServerErrors()}

func TestRequest_RequiresAddress(t *testing.T) {
	f := newMockFetcher()
	c := NewCoordinator(f, []int64{1})

	_, err := c.Request(context.Background(), 1)
	assert.ErrorIs(t, err, ErrAddressRequired)
	assert.Equal(t, apperror.KindPrecondition, apperror.Classify(err))
	assert.Equal(t, 0, f.callCount(1))
	assert.Equal(t, domain.QuoteStatusUnrequested, c.Status(1))
}

func TestRequest_LoadsOnceAndCaches(t *testing.T) {
	f := newMockFetcher()
	c := NewCoordinator(f, []int64{1, 2}, WithAddress(5))
	ctx := context.Background()

	view, err := c.Request(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteStatusLoaded, view.Status)
	assert.Len(t, view.Options, 2)

	_, err = c.Request(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, f.callCount(1))

	_, err = c.Retry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount(1))

	_, err = c.Request(ctx, 99)
	assert.ErrorIs(t, err, ErrUnknownSeller)
}

func TestRequest_ConcurrentCallsShareOneFetch(t *testing.T) {
	f := newMockFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan int64, 10)
	c := NewCoordinator(f, []int64{1}, WithAddress(5))

	var wg sync.WaitGroup
	var loaded atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if view, err := c.Request(context.Background(), 1); err == nil && view.Status == domain.QuoteStatusLoaded {
				loaded.Add(1)
			}
		}()
	}

	<-f.started
	require.Eventually(t, func() bool { return c.Status(1) == domain.QuoteStatusLoading }, time.Second, time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.Equal(t, int32(5), loaded.Load())
	assert.LessOrEqual(t, f.callCount(1), 5)
	assert.GreaterOrEqual(t, f.callCount(1), 1)
}

func TestPartialFailureIsIsolated(t *testing.T) {
	f := newMockFetcher()
	f.fail[2] = serverErr
	c := NewCoordinator(f, []int64{1, 2, 3}, WithAddress(5))
	ctx := context.Background()

	failures, err := c.RequestAll(ctx)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, apperror.KindServer, apperror.Classify(failures[2]))

	assert.Equal(t, domain.QuoteStatusLoaded, c.Status(1))
	assert.Equal(t, domain.QuoteStatusFailed, c.Status(2))
	assert.Equal(t, domain.QuoteStatusLoaded, c.Status(3))

	_, err = c.Choose(1, 11)
	require.NoError(t, err)
	_, err = c.Choose(3, 31)
	require.NoError(t, err)
	assert.False(t, c.IsComplete())

	f.m.Lock()
	delete(f.fail, 2)
	f.m.Unlock()

	view, err := c.Retry(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteStatusLoaded, view.Status)
	assert.Equal(t, 1, f.callCount(1))
	assert.Equal(t, 1, f.callCount(3))

	_, err = c.Choose(2, 21)
	require.NoError(t, err)
	assert.True(t, c.IsComplete())
}

func TestChoose(t *testing.T) {
	f := newMockFetcher()
	c := NewCoordinator(f, []int64{1}, WithAddress(5))

	_, err := c.Choose(1, 11)
	assert.ErrorIs(t, err, ErrQuoteNotLoaded)

	_, err = c.Request(context.Background(), 1)
	require.NoError(t, err)

	_, err = c.Choose(1, 99)
	assert.ErrorIs(t, err, ErrUnknownOption)

	view, err := c.Choose(1, 12)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(2000), view.Cost)
	assert.Equal(t, []domain.DeliveryChoice{{SellerID: 1, DeliveryOptionID: 12}}, c.Choices())
}

func TestSetActiveAddress_InvalidatesQuotesAndChoices(t *testing.T) {
	f := newMockFetcher()
	c := NewCoordinator(f, []int64{1}, WithAddress(5))
	ctx := context.Background()

	_, err := c.Request(ctx, 1)
	require.NoError(t, err)
	_, err = c.Choose(1, 11)
	require.NoError(t, err)

	c.SetActiveAddress(5)
	assert.True(t, c.IsComplete())

	c.SetActiveAddress(6)
	assert.Equal(t, domain.QuoteStatusUnrequested, c.Status(1))
	assert.False(t, c.IsComplete())
	assert.Empty(t, c.Quotes())

	_, err = c.Request(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount(1))
}

func TestLateResponseAfterAddressChangeIsDropped(t *testing.T) {
	f := newMockFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan int64, 1)
	c := NewCoordinator(f, []int64{1}, WithAddress(5))

	done := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), 1)
		done <- err
	}()

	<-f.started
	c.SetActiveAddress(6)
	close(f.gate)

	assert.ErrorIs(t, <-done, ErrStale)
	assert.Equal(t, domain.QuoteStatusUnrequested, c.Status(1))
}

func TestClose_DropsInFlight(t *testing.T) {
	f := newMockFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan int64, 1)
	c := NewCoordinator(f, []int64{1}, WithAddress(5))

	done := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), 1)
		done <- err
	}()

	<-f.started
	c.Close()

	assert.ErrorIs(t, <-done, ErrStale)
	_, err := c.Request(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCallerCancellationDoesNotFailGroup(t *testing.T) {
	f := newMockFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan int64, 1)
	c := NewCoordinator(f, []int64{1}, WithAddress(5))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Request(ctx, 1)
		done <- err
	}()

	<-f.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(f.gate)
	require.Eventually(t, func() bool { return c.Status(1) == domain.QuoteStatusLoaded }, time.Second, time.Millisecond)
}

func TestCacheIsUsedPerAddress(t *testing.T) {
	f := newMockFetcher()
	qc := &mapCache{items: make(map[string]domain.DeliveryQuote)}
	ctx := context.Background()

	first := NewCoordinator(f, []int64{1}, WithAddress(5), WithCache(qc, "42"))
	_, err := first.Request(ctx, 1)
	require.NoError(t, err)

	second := NewCoordinator(f, []int64{1}, WithAddress(5), WithCache(qc, "42"))
	view, err := second.Request(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, view.Options, 2)
	assert.Equal(t, 1, f.callCount(1))

	other := NewCoordinator(f, []int64{1}, WithAddress(6), WithCache(qc, "42"))
	_, err = other.Request(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount(1))
}

func TestFailedFetchKeepsErrorOnView(t *testing.T) {
	f := newMockFetcher()
	f.fail[1] = errors.New("dial tcp: connection refused")
	c := NewCoordinator(f, []int64{1}, WithAddress(5))

	view, err := c.Request(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, domain.QuoteStatusFailed, view.Status)
	assert.Error(t, view.Err)
}

func TestFailedRetryWithdrawsChoice(t *testing.T) {
	f := newMockFetcher()
	c := NewCoordinator(f, []int64{1, 2}, WithAddress(5))
	ctx := context.Background()

	_, err := c.RequestAll(ctx)
	require.NoError(t, err)
	_, err = c.Choose(1, 12)
	require.NoError(t, err)
	_, err = c.Choose(2, 21)
	require.NoError(t, err)
	require.True(t, c.IsComplete())

	f.m.Lock()
	f.fail[1] = serverErr
	f.m.Unlock()

	view, err := c.Retry(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, domain.QuoteStatusFailed, view.Status)
	assert.Equal(t, domain.UnsetDeliveryOption, view.Choice.DeliveryOptionID)
	assert.False(t, c.IsComplete())
	assert.Equal(t, []domain.DeliveryChoice{
		{SellerID: 1, DeliveryOptionID: domain.UnsetDeliveryOption},
		{SellerID: 2, DeliveryOptionID: 21},
	}, c.Choices())
	assert.NotContains(t, c.Quotes(), int64(1))

	f.m.Lock()
	delete(f.fail, 1)
	f.m.Unlock()

	view, err = c.Retry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(12), view.Choice.DeliveryOptionID)
	assert.Equal(t, domain.Money(2000), view.Cost)
	assert.True(t, c.IsComplete())
}

func TestChoiceDoesNotCountWhileReloading(t *testing.T) {
	f := newMockFetcher()
	c := NewCoordinator(f, []int64{1}, WithAddress(5))
	ctx := context.Background()

	_, err := c.Request(ctx, 1)
	require.NoError(t, err)
	_, err = c.Choose(1, 11)
	require.NoError(t, err)

	f.m.Lock()
	f.gate = make(chan struct{})
	f.started = make(chan int64, 1)
	f.m.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := c.Retry(ctx, 1)
		done <- err
	}()

	<-f.started
	assert.Equal(t, domain.QuoteStatusLoading, c.Status(1))
	assert.False(t, c.IsComplete())

	close(f.gate)
	require.NoError(t, <-done)
	assert.True(t, c.IsComplete())
}

func TestRetryDropsCachedQuote(t *testing.T) {
	f := newMockFetcher()
	qc := &mapCache{items: make(map[string]domain.DeliveryQuote)}
	c := NewCoordinator(f, []int64{1}, WithAddress(5), WithCache(qc, "42"))
	ctx := context.Background()

	_, err := c.Request(ctx, 1)
	require.NoError(t, err)
	require.Contains(t, qc.items, "42:5:1")

	f.m.Lock()
	f.fail[1] = serverErr
	f.m.Unlock()

	_, err = c.Retry(ctx, 1)
	require.Error(t, err)
	assert.NotContains(t, qc.items, "42:5:1")

	fresh := NewCoordinator(f, []int64{1}, WithAddress(5), WithCache(qc, "42"))
	_, err = fresh.Request(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, 3, f.callCount(1))
}
