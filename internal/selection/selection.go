package selection

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Membership answers whether a cart item currently exists.
type Membership interface {
	Has(cartItemID int64) bool
}

// Repository persists a buyer's selection across BFF restarts.
type Repository interface {
	Load(ctx context.Context, owner string) ([]int64, error)
	Add(ctx context.Context, owner string, cartItemID int64) error
	Remove(ctx context.Context, owner string, cartItemID int64) error
	Clear(ctx context.Context, owner string) error
}

type Option func(*Set)

func WithRepository(repo Repository, owner string) Option {
	return func(s *Set) {
		s.repo = repo
		s.owner = owner
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Set) { s.logger = logger }
}

// Set is the group of cart item ids marked for checkout. It only ever holds
// ids the cart currently contains.
type Set struct {
	mu     sync.RWMutex
	ids    map[int64]struct{}
	cart   Membership
	repo   Repository
	owner  string
	logger *zap.Logger
}

func NewSet(cart Membership, opts ...Option) *Set {
	s := &Set{
		ids:    make(map[int64]struct{}),
		cart:   cart,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads the persisted selection, keeping only ids still in the cart.
func (s *Set) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	ids, err := s.repo.Load(ctx, s.owner)
	if err != nil {
		return err
	}

	s.mu.Lock()
	var stale []int64
	for _, id := range ids {
		if s.cart.Has(id) {
			s.ids[id] = struct{}{}
		} else {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.persist(func(ctx context.Context) error { return s.repo.Remove(ctx, s.owner, id) })
	}
	return nil
}

// Toggle flips the id's membership and reports whether it is now selected.
// Ids not in the cart are ignored. The membership check runs under the set
// lock so a concurrent delete's Prune always lands after the insert.
func (s *Set) Toggle(cartItemID int64) bool {
	s.mu.Lock()
	if !s.cart.Has(cartItemID) {
		s.mu.Unlock()
		return false
	}
	_, selected := s.ids[cartItemID]
	if selected {
		delete(s.ids, cartItemID)
	} else {
		s.ids[cartItemID] = struct{}{}
	}
	s.mu.Unlock()

	if s.repo != nil {
		if selected {
			s.persist(func(ctx context.Context) error { return s.repo.Remove(ctx, s.owner, cartItemID) })
		} else {
			s.persist(func(ctx context.Context) error { return s.repo.Add(ctx, s.owner, cartItemID) })
		}
	}
	return !selected
}

func (s *Set) Reset() {
	s.mu.Lock()
	s.ids = make(map[int64]struct{})
	s.mu.Unlock()

	if s.repo != nil {
		s.persist(func(ctx context.Context) error { return s.repo.Clear(ctx, s.owner) })
	}
}

func (s *Set) Contains(cartItemID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[cartItemID]
	return ok
}

// All returns the selected ids in ascending order.
func (s *Set) All() []int64 {
	s.mu.RLock()
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Prune drops one id, used when its cart entry has been deleted.
func (s *Set) Prune(cartItemID int64) {
	s.mu.Lock()
	_, ok := s.ids[cartItemID]
	delete(s.ids, cartItemID)
	s.mu.Unlock()

	if ok && s.repo != nil {
		s.persist(func(ctx context.Context) error { return s.repo.Remove(ctx, s.owner, cartItemID) })
	}
}

// Retain drops every id the cart no longer contains.
func (s *Set) Retain(cart Membership) {
	s.mu.Lock()
	var dropped []int64
	for id := range s.ids {
		if !cart.Has(id) {
			delete(s.ids, id)
			dropped = append(dropped, id)
		}
	}
	s.mu.Unlock()

	if s.repo == nil {
		return
	}
	for _, id := range dropped {
		s.persist(func(ctx context.Context) error { return s.repo.Remove(ctx, s.owner, id) })
	}
}

func (s *Set) persist(op func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := op(ctx); err != nil {
		s.logger.Warn("selection persist failed", zap.String("owner", s.owner), zap.Error(err))
	}
}
