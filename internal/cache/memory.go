package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
)

type quoteEntry struct {
	quote     domain.DeliveryQuote
	expiresAt time.Time
}

// MemoryQuoteCache is the process-local quote cache used when Redis is not
// configured. Expired entries are swept by a background goroutine.
type MemoryQuoteCache struct {
	mu      sync.RWMutex
	entries map[string]quoteEntry
	ttl     time.Duration
	now     func() time.Time

	stopCleanup chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

func NewMemoryQuoteCache(ttl time.Duration) *MemoryQuoteCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	c := &MemoryQuoteCache{
		entries:     make(map[string]quoteEntry),
		ttl:         ttl,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	c.wg.Add(1)
	go c.cleanupLoop(interval)
	return c
}

func (c *MemoryQuoteCache) Get(_ context.Context, key string) (*domain.DeliveryQuote, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		return nil, ErrCacheMiss
	}
	quote := e.quote
	return &quote, nil
}

func (c *MemoryQuoteCache) Set(_ context.Context, key string, quote *domain.DeliveryQuote) error {
	if quote == nil {
		return nil
	}
	c.mu.Lock()
	c.entries[key] = quoteEntry{quote: *quote, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryQuoteCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryQuoteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryQuoteCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCleanup)
		c.wg.Wait()
	})
}

func (c *MemoryQuoteCache) cleanupLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *MemoryQuoteCache) removeExpired() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// MemorySelectionRepository keeps selections for the lifetime of the process.
type MemorySelectionRepository struct {
	mu   sync.RWMutex
	sets map[string]map[int64]struct{}
}

func NewMemorySelectionRepository() *MemorySelectionRepository {
	return &MemorySelectionRepository{sets: make(map[string]map[int64]struct{})}
}

func (r *MemorySelectionRepository) Load(_ context.Context, owner string) ([]int64, error) {
	r.mu.RLock()
	set := r.sets[owner]
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *MemorySelectionRepository) Add(_ context.Context, owner string, cartItemID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sets[owner]
	if !ok {
		set = make(map[int64]struct{})
		r.sets[owner] = set
	}
	set[cartItemID] = struct{}{}
	return nil
}

func (r *MemorySelectionRepository) Remove(_ context.Context, owner string, cartItemID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sets[owner]
	if !ok {
		return nil
	}
	delete(set, cartItemID)
	if len(set) == 0 {
		delete(r.sets, owner)
	}
	return nil
}

func (r *MemorySelectionRepository) Clear(_ context.Context, owner string) error {
	r.mu.Lock()
	delete(r.sets, owner)
	r.mu.Unlock()
	return nil
}
