package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/go_cart/storefront-service/internal/cache"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Fetcher asks the delivery quoting service for one seller's options.
type Fetcher interface {
	GetDeliveryOptions(ctx context.Context, sellerID int64) (domain.DeliveryQuote, error)
}

// QuoteCache keeps quotes across requests of the same buyer and address.
type QuoteCache interface {
	Get(ctx context.Context, key string) (*domain.DeliveryQuote, error)
	Set(ctx context.Context, key string, quote *domain.DeliveryQuote) error
	Delete(ctx context.Context, key string) error
}

type Option func(*Coordinator)

func WithCache(c QuoteCache, scope string) Option {
	return func(co *Coordinator) {
		co.cache = c
		co.scope = scope
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(co *Coordinator) { co.logger = logger }
}

// WithAddress sets the active address id; zero means none.
func WithAddress(addressID int64) Option {
	return func(co *Coordinator) { co.addressID = addressID }
}

type groupState struct {
	status domain.QuoteStatus
	quote  *domain.DeliveryQuote
	choice int64
	err    error
}

// chosen is the option that counts toward submission and shipping. A choice
// survives a retry but only counts while the quote it refers to is loaded.
func (g *groupState) chosen() int64 {
	if g.status != domain.QuoteStatusLoaded {
		return domain.UnsetDeliveryOption
	}
	return g.choice
}

// GroupView is a read-only copy of one seller's quote state.
type GroupView struct {
	SellerID int64
	Status   domain.QuoteStatus
	Options  []domain.DeliveryOption
	Choice   domain.DeliveryChoice
	Cost     domain.Money
	Err      error
}

// Coordinator owns the delivery quote and choice of every seller group in a
// checkout. Each group moves independently; one group failing never touches
// another.
type Coordinator struct {
	mu         sync.Mutex
	fetcher    Fetcher
	cache      QuoteCache
	scope      string
	sellers    []int64
	groups     map[int64]*groupState
	addressID  int64
	generation uint64
	closed     bool

	sfg    singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

func NewCoordinator(fetcher Fetcher, sellerIDs []int64, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		fetcher: fetcher,
		groups:  make(map[int64]*groupState, len(sellerIDs)),
		ctx:     ctx,
		cancel:  cancel,
		logger:  zap.NewNop(),
	}
	for _, id := range sellerIDs {
		if _, dup := c.groups[id]; dup {
			continue
		}
		c.sellers = append(c.sellers, id)
		c.groups[id] = &groupState{status: domain.QuoteStatusUnrequested}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request loads the seller's quote unless it is already loaded. Concurrent
// requests for the same seller share one fetch.
func (c *Coordinator) Request(ctx context.Context, sellerID int64) (GroupView, error) {
	return c.request(ctx, sellerID, false)
}

// Retry refetches the seller's quote, bypassing the cache.
func (c *Coordinator) Retry(ctx context.Context, sellerID int64) (GroupView, error) {
	return c.request(ctx, sellerID, true)
}

func (c *Coordinator) request(ctx context.Context, sellerID int64, refresh bool) (GroupView, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return GroupView{}, ErrClosed
	}
	g, ok := c.groups[sellerID]
	if !ok {
		c.mu.Unlock()
		return GroupView{}, ErrUnknownSeller
	}
	if c.addressID == 0 {
		c.mu.Unlock()
		return GroupView{}, ErrAddressRequired
	}
	if g.status == domain.QuoteStatusLoaded && !refresh {
		view := c.viewLocked(sellerID)
		c.mu.Unlock()
		return view, nil
	}
	if err := c.transitionLocked(sellerID, g, domain.QuoteStatusLoading); err != nil {
		c.mu.Unlock()
		return GroupView{}, err
	}
	g.err = nil
	gen := c.generation
	addressID := c.addressID
	c.mu.Unlock()

	key := fmt.Sprintf("%d:%d", gen, sellerID)
	ch := c.sfg.DoChan(key, func() (any, error) {
		return c.load(sellerID, addressID, gen, refresh)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return c.View(sellerID), res.Err
		}
		return res.Val.(GroupView), nil
	case <-ctx.Done():
		return GroupView{}, ctx.Err()
	}
}

// load runs detached from the caller so an abandoned HTTP request does not
// fail the group; Close cancels it.
func (c *Coordinator) load(sellerID, addressID int64, gen uint64, refresh bool) (GroupView, error) {
	key := c.cacheKey(addressID, sellerID)

	var quote *domain.DeliveryQuote
	if c.cache != nil && refresh {
		if err := c.cache.Delete(c.ctx, key); err != nil {
			c.logger.Warn("quote cache delete failed", zap.String("key", key), zap.Error(err))
		}
	}
	if c.cache != nil && !refresh {
		cached, err := c.cache.Get(c.ctx, key)
		if err == nil {
			quote = cached
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("quote cache get failed", zap.String("key", key), zap.Error(err))
		}
	}

	var fetchErr error
	if quote == nil {
		fetched, err := c.fetcher.GetDeliveryOptions(c.ctx, sellerID)
		if err != nil {
			fetchErr = err
		} else {
			fetched.SellerID = sellerID
			quote = &fetched
			if c.cache != nil {
				if err := c.cache.Set(c.ctx, key, quote); err != nil {
					c.logger.Warn("quote cache set failed", zap.String("key", key), zap.Error(err))
				}
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.generation {
		return GroupView{}, ErrStale
	}
	g := c.groups[sellerID]
	if fetchErr != nil {
		if err := c.transitionLocked(sellerID, g, domain.QuoteStatusFailed); err != nil {
			return GroupView{}, err
		}
		g.err = fetchErr
		c.logger.Info("delivery quote failed", zap.Int64("seller_id", sellerID), zap.Error(fetchErr))
		return GroupView{}, fetchErr
	}
	if err := c.transitionLocked(sellerID, g, domain.QuoteStatusLoaded); err != nil {
		return GroupView{}, err
	}
	g.quote = quote
	g.err = nil
	if _, ok := quote.Option(g.choice); !ok {
		g.choice = domain.UnsetDeliveryOption
	}
	return c.viewLocked(sellerID), nil
}

// RequestAll requests every group that is not loaded yet, concurrently.
// The returned map holds the failure of each group that failed.
func (c *Coordinator) RequestAll(ctx context.Context) (map[int64]error, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.addressID == 0 {
		c.mu.Unlock()
		return nil, ErrAddressRequired
	}
	var pending []int64
	for _, id := range c.sellers {
		if c.groups[id].status != domain.QuoteStatusLoaded {
			pending = append(pending, id)
		}
	}
	c.mu.Unlock()

	var (
		mu       sync.Mutex
		failures = make(map[int64]error)
		eg       errgroup.Group
	)
	for _, id := range pending {
		eg.Go(func() error {
			if _, err := c.Request(ctx, id); err != nil {
				mu.Lock()
				failures[id] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()
	return failures, nil
}

// Choose records the buyer's delivery option for one loaded group.
func (c *Coordinator) Choose(sellerID, optionID int64) (GroupView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return GroupView{}, ErrClosed
	}
	g, ok := c.groups[sellerID]
	if !ok {
		return GroupView{}, ErrUnknownSeller
	}
	if g.status != domain.QuoteStatusLoaded || g.quote == nil {
		return GroupView{}, ErrQuoteNotLoaded
	}
	if _, ok := g.quote.Option(optionID); !ok {
		return GroupView{}, ErrUnknownOption
	}
	g.choice = optionID
	return c.viewLocked(sellerID), nil
}

// SetActiveAddress changes the upstream address. A different address drops
// every quote and choice, and any fetch still in flight becomes stale.
func (c *Coordinator) SetActiveAddress(addressID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if addressID == c.addressID {
		return
	}
	c.logger.Info("active address changed, dropping delivery quotes",
		zap.Int64("from", c.addressID),
		zap.Int64("to", addressID))
	c.addressID = addressID
	c.generation++
	for id, g := range c.groups {
		if err := c.transitionLocked(id, g, domain.QuoteStatusUnrequested); err != nil {
			c.logger.Warn("failed to reset delivery quote", zap.Int64("seller_id", id), zap.Error(err))
		}
		g.quote = nil
		g.choice = domain.UnsetDeliveryOption
		g.err = nil
	}
}

func (c *Coordinator) AddressID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addressID
}

// Close discards all state; responses arriving later are dropped.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

// Choices lists one choice per group in seller order; groups without a choice
// on a loaded quote carry UnsetDeliveryOption.
func (c *Coordinator) Choices() []domain.DeliveryChoice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.DeliveryChoice, 0, len(c.sellers))
	for _, id := range c.sellers {
		out = append(out, domain.DeliveryChoice{SellerID: id, DeliveryOptionID: c.groups[id].chosen()})
	}
	return out
}

// Quotes returns the loaded quotes by seller.
func (c *Coordinator) Quotes() map[int64]domain.DeliveryQuote {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]domain.DeliveryQuote, len(c.groups))
	for id, g := range c.groups {
		if g.status == domain.QuoteStatusLoaded && g.quote != nil {
			out[id] = *g.quote
		}
	}
	return out
}

// IsComplete reports whether every group has a choice on a loaded quote.
func (c *Coordinator) IsComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.sellers {
		if c.groups[id].chosen() == domain.UnsetDeliveryOption {
			return false
		}
	}
	return true
}

func (c *Coordinator) Status(sellerID int64) domain.QuoteStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.groups[sellerID]
	if !ok {
		return domain.QuoteStatusUnrequested
	}
	return g.status
}

func (c *Coordinator) View(sellerID int64) GroupView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked(sellerID)
}

// Views returns every group in seller order.
func (c *Coordinator) Views() []GroupView {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]GroupView, 0, len(c.sellers))
	for _, id := range c.sellers {
		out = append(out, c.viewLocked(id))
	}
	return out
}

func (c *Coordinator) viewLocked(sellerID int64) GroupView {
	g, ok := c.groups[sellerID]
	if !ok {
		return GroupView{SellerID: sellerID, Status: domain.QuoteStatusUnrequested}
	}
	view := GroupView{
		SellerID: sellerID,
		Status:   g.status,
		Choice:   domain.DeliveryChoice{SellerID: sellerID, DeliveryOptionID: g.chosen()},
		Err:      g.err,
	}
	if g.quote != nil && g.status == domain.QuoteStatusLoaded {
		view.Options = append([]domain.DeliveryOption(nil), g.quote.Options...)
		if opt, ok := g.quote.Option(g.choice); ok {
			view.Cost = opt.Cost
		}
	}
	return view
}

func (c *Coordinator) transitionLocked(sellerID int64, g *groupState, to domain.QuoteStatus) error {
	if g.status == to {
		return nil
	}
	if !domain.CanQuoteTransitionTo(g.status, to) {
		return fmt.Errorf("%w: seller %d %s -> %s", ErrInvalidTransition, sellerID, g.status, to)
	}
	g.status = to
	return nil
}

func (c *Coordinator) cacheKey(addressID, sellerID int64) string {
	return fmt.Sprintf("%s:%d:%d", c.scope, addressID, sellerID)
}
