package reconciler

import (
	"context"
	"sort"
	"sync"

	"github.com/fjod/go_cart/storefront-service/internal/apperror"
	"github.com/fjod/go_cart/storefront-service/internal/cart"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/selection"
	"go.uber.org/zap"
)

// ErrConfirmationRequired is returned when a decrement would drop an entry
// to zero; the buyer must confirm the delete instead.
var ErrConfirmationRequired = apperror.NewPrecondition("confirmation_required", "remove this item from the cart?")

type Store interface {
	selection.Membership
	Get(cartItemID int64) (domain.CartEntry, bool)
	Load(ctx context.Context) ([]domain.CartEntry, error)
	Add(ctx context.Context, productRef int64, quantity int) error
	ApplyQuantityDelta(ctx context.Context, cartItemID int64, delta int) (domain.CartEntry, error)
	Remove(ctx context.Context, cartItemID int64) error
}

type Selection interface {
	Prune(cartItemID int64)
	Retain(cart selection.Membership)
}

// Reconciler applies buyer cart edits: the server is asked first, local state
// follows, and every edit ends with a full refetch.
type Reconciler struct {
	mu        sync.Mutex
	store     Store
	selection Selection
	pending   map[int64]struct{}
	logger    *zap.Logger
}

func New(store Store, sel Selection, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:     store,
		selection: sel,
		pending:   make(map[int64]struct{}),
		logger:    logger,
	}
}

func (r *Reconciler) Increment(ctx context.Context, cartItemID int64) (domain.CartEntry, error) {
	entry, err := r.store.ApplyQuantityDelta(ctx, cartItemID, 1)
	r.refetch(ctx)
	return entry, err
}

// Decrement lowers the quantity by one. At quantity one nothing is sent and
// ErrConfirmationRequired is returned with the entry marked pending delete.
func (r *Reconciler) Decrement(ctx context.Context, cartItemID int64) (domain.CartEntry, error) {
	entry, ok := r.store.Get(cartItemID)
	if !ok {
		return domain.CartEntry{}, cart.ErrEntryNotFound
	}
	if entry.Quantity <= 1 {
		r.mu.Lock()
		r.pending[cartItemID] = struct{}{}
		r.mu.Unlock()
		return entry, ErrConfirmationRequired
	}

	entry, err := r.store.ApplyQuantityDelta(ctx, cartItemID, -1)
	r.refetch(ctx)
	return entry, err
}

// ConfirmDelete removes the entry from the cart and from the selection.
func (r *Reconciler) ConfirmDelete(ctx context.Context, cartItemID int64) error {
	r.mu.Lock()
	delete(r.pending, cartItemID)
	r.mu.Unlock()

	err := r.store.Remove(ctx, cartItemID)
	if err == nil {
		r.selection.Prune(cartItemID)
	}
	r.refetch(ctx)
	return err
}

// CancelDelete leaves the entry untouched.
func (r *Reconciler) CancelDelete(cartItemID int64) {
	r.mu.Lock()
	delete(r.pending, cartItemID)
	r.mu.Unlock()
}

func (r *Reconciler) PendingDeletes() []int64 {
	r.mu.Lock()
	out := make([]int64, 0, len(r.pending))
	for id := range r.pending {
		out = append(out, id)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Reconciler) Add(ctx context.Context, productRef int64, quantity int) error {
	err := r.store.Add(ctx, productRef, quantity)
	if err != nil && apperror.Classify(err) == apperror.KindPrecondition {
		return err
	}
	r.refetch(ctx)
	return err
}

// Refresh reloads the cart on demand.
func (r *Reconciler) Refresh(ctx context.Context) ([]domain.CartEntry, error) {
	entries, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	r.afterLoad()
	return entries, nil
}

func (r *Reconciler) refetch(ctx context.Context) {
	if _, err := r.store.Load(ctx); err != nil {
		r.logger.Warn("cart refetch failed", zap.Error(err))
		return
	}
	r.afterLoad()
}

func (r *Reconciler) afterLoad() {
	r.selection.Retain(r.store)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.pending {
		if !r.store.Has(id) {
			delete(r.pending, id)
		}
	}
}
