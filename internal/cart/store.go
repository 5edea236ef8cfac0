package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"go.uber.org/zap"
)

// API is the part of the marketplace the store talks to.
type API interface {
	GetCart(ctx context.Context) (domain.GroupedCart, error)
	UpdateCartQuantity(ctx context.Context, productRef int64, delta int) error
	DeleteCartItem(ctx context.Context, cartItemID int64) error
}

// Overview reports the server-side cart lines without product detail.
type Overview interface {
	GetCartOverview(ctx context.Context) ([]domain.CartOverviewItem, error)
}

// Directory resolves seller names the cart response left blank.
type Directory interface {
	GetPharmacy(ctx context.Context, pharmacyID int64) (domain.Pharmacy, error)
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithDirectory(d Directory) Option {
	return func(s *Store) { s.directory = d }
}

func WithOverview(o Overview) Option {
	return func(s *Store) { s.overview = o }
}

// Store is the buyer's local copy of the server-side cart. Local state only
// changes after the server has accepted a mutation.
type Store struct {
	mu        sync.RWMutex
	api       API
	directory Directory
	overview  Overview
	entries   []domain.CartEntry
	index     map[int64]int
	subs      map[int]func([]domain.CartEntry)
	nextSub   int
	logger    *zap.Logger
}

func NewStore(api API, opts ...Option) *Store {
	s := &Store{
		api:    api,
		index:  make(map[int64]int),
		subs:   make(map[int]func([]domain.CartEntry)),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the cart and replaces local state with it.
func (s *Store) Load(ctx context.Context) ([]domain.CartEntry, error) {
	groups, err := s.api.GetCart(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	s.fillSellerNames(ctx, groups)
	s.ReplaceAll(groups.Entries())
	return s.Entries(), nil
}

func (s *Store) fillSellerNames(ctx context.Context, groups domain.GroupedCart) {
	if s.directory == nil {
		return
	}
	for gi := range groups {
		if groups[gi].SellerName != "" {
			continue
		}
		p, err := s.directory.GetPharmacy(ctx, groups[gi].SellerID)
		if err != nil {
			s.logger.Warn("pharmacy lookup failed", zap.Int64("seller_id", groups[gi].SellerID), zap.Error(err))
			continue
		}
		groups[gi].SellerName = p.Name
		for ei := range groups[gi].Entries {
			groups[gi].Entries[ei].SellerName = p.Name
		}
	}
}

// ApplyQuantityDelta changes an entry's quantity on the server, then locally.
func (s *Store) ApplyQuantityDelta(ctx context.Context, cartItemID int64, delta int) (domain.CartEntry, error) {
	if delta == 0 {
		return domain.CartEntry{}, ErrZeroDelta
	}
	entry, ok := s.Get(cartItemID)
	if !ok {
		return domain.CartEntry{}, ErrEntryNotFound
	}
	target := entry.Quantity + delta
	if target < 1 {
		return domain.CartEntry{}, ErrQuantityBelowOne
	}

	if err := s.api.UpdateCartQuantity(ctx, entry.ProductRef, delta); err != nil {
		s.logger.Info("quantity update rejected",
			zap.Int64("cart_item_id", cartItemID),
			zap.Int("delta", delta),
			zap.Error(err))
		return domain.CartEntry{}, err
	}

	s.mu.Lock()
	i, ok := s.index[cartItemID]
	if !ok {
		s.mu.Unlock()
		return domain.CartEntry{}, ErrEntryNotFound
	}
	current := s.entries[i]
	if current.Quantity+delta < 1 {
		// a refresh landed in between; the follow-up load settles it
		s.mu.Unlock()
		return current, nil
	}
	current.UnitSubtotal = current.UnitSubtotal.Scale(current.Quantity+delta, current.Quantity)
	current.Quantity += delta
	s.entries[i] = current
	snapshot := s.copyLocked()
	s.mu.Unlock()

	s.notify(snapshot)
	return current, nil
}

// Add puts a product into the cart. The new entry appears on the next Load.
func (s *Store) Add(ctx context.Context, productRef int64, quantity int) error {
	if quantity < 1 {
		return ErrQuantityBelowOne
	}
	return s.api.UpdateCartQuantity(ctx, productRef, quantity)
}

func (s *Store) Remove(ctx context.Context, cartItemID int64) error {
	if !s.Has(cartItemID) {
		return ErrEntryNotFound
	}
	if err := s.api.DeleteCartItem(ctx, cartItemID); err != nil {
		return err
	}

	s.mu.Lock()
	kept := make([]domain.CartEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.CartItemID != cartItemID {
			kept = append(kept, e)
		}
	}
	s.setLocked(kept)
	snapshot := s.copyLocked()
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// ReplaceAll swaps the whole local cart. Entries below quantity one are dropped.
func (s *Store) ReplaceAll(entries []domain.CartEntry) {
	kept := make([]domain.CartEntry, 0, len(entries))
	for _, e := range entries {
		if e.Quantity < 1 {
			s.logger.Warn("dropping cart entry with non-positive quantity",
				zap.Int64("cart_item_id", e.CartItemID),
				zap.Int("quantity", e.Quantity))
			continue
		}
		kept = append(kept, e)
	}

	s.mu.Lock()
	s.setLocked(kept)
	snapshot := s.copyLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

func (s *Store) setLocked(entries []domain.CartEntry) {
	s.entries = entries
	s.index = make(map[int64]int, len(entries))
	for i, e := range entries {
		s.index[e.CartItemID] = i
	}
}

func (s *Store) copyLocked() []domain.CartEntry {
	out := make([]domain.CartEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) Entries() []domain.CartEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) Get(cartItemID int64) (domain.CartEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[cartItemID]
	if !ok {
		return domain.CartEntry{}, false
	}
	return s.entries[i], true
}

func (s *Store) Has(cartItemID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[cartItemID]
	return ok
}

// Count is the badge number: the sum of all quantities.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, e := range s.entries {
		total += e.Quantity
	}
	return total
}

// BadgeCount asks the server for the current item count, falling back to
// the local copy when no overview source is configured.
func (s *Store) BadgeCount(ctx context.Context) (int, error) {
	if s.overview == nil {
		return s.Count(), nil
	}
	items, err := s.overview.GetCartOverview(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load cart overview: %w", err)
	}
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total, nil
}

// Subscribe registers fn to receive the entries after every change and
// returns a func that removes it.
func (s *Store) Subscribe(fn func([]domain.CartEntry)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(entries []domain.CartEntry) {
	s.mu.RLock()
	subs := make([]func([]domain.CartEntry), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(entries)
	}
}
