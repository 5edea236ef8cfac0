package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/delivery"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/pricing"
	"github.com/fjod/go_cart/storefront-service/internal/selection"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// API is the part of the marketplace checkout talks to.
type API interface {
	delivery.Fetcher
	CreateCheckout(ctx context.Context, cartItemIDs []int64) (domain.CheckoutSnapshot, error)
	SubmitOrder(ctx context.Context, snapshotID string, choices []domain.DeliveryChoice) (string, error)
	GetActiveAddress(ctx context.Context) (*domain.Address, error)
}

// Cart is the buyer's cart store.
type Cart interface {
	selection.Membership
	Load(ctx context.Context) ([]domain.CartEntry, error)
	Entries() []domain.CartEntry
	ReplaceAll(entries []domain.CartEntry)
}

// Selection is the buyer's checkout selection.
type Selection interface {
	All() []int64
	Reset()
	Retain(cart selection.Membership)
}

type ReceiptRecorder interface {
	SaveReceipt(ctx context.Context, r domain.Receipt) error
}

type EventPublisher interface {
	PublishCheckoutCompleted(ctx context.Context, r domain.Receipt) error
}

type Config struct {
	UserID   string
	Currency string

	QuoteCache delivery.QuoteCache
	Receipts   ReceiptRecorder
	Events     EventPublisher
	Logger     *zap.Logger
}

// Orchestrator drives one checkout from the buyer's selection to a placed
// order. All methods are safe for concurrent use.
type Orchestrator struct {
	mu sync.Mutex

	api       API
	cart      Cart
	selection Selection
	cfg       Config
	logger    *zap.Logger

	status      domain.CheckoutStatus
	snapshot    *domain.CheckoutSnapshot
	address     *domain.Address
	coordinator *delivery.Coordinator
	lastErr     error
	receipt     *domain.Receipt
}

func NewOrchestrator(api API, cart Cart, sel Selection, cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "IDR"
	}
	return &Orchestrator{
		api:       api,
		cart:      cart,
		selection: sel,
		cfg:       cfg,
		logger:    logger.With(zap.String("user_id", cfg.UserID)),
		status:    domain.CheckoutStatusIdle,
	}
}

func (o *Orchestrator) transitionLocked(to domain.CheckoutStatus) error {
	if !domain.CanTransitionTo(o.status, to) {
		return fmt.Errorf("%w: %s -> %s", IllegalTransitionError, o.status, to)
	}
	o.logger.Debug("checkout transition", zap.Stringer("from", o.status), zap.Stringer("to", to))
	o.status = to
	return nil
}

// Begin snapshots the current selection. An empty selection fails before any
// network call.
func (o *Orchestrator) Begin(ctx context.Context) error {
	o.mu.Lock()
	if o.status != domain.CheckoutStatusIdle && o.status != domain.CheckoutStatusFailed {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	ids := o.selection.All()
	if len(ids) == 0 {
		o.mu.Unlock()
		return ErrEmptySelection
	}
	if err := o.transitionLocked(domain.CheckoutStatusInitializing); err != nil {
		o.mu.Unlock()
		return err
	}
	o.lastErr = nil
	o.mu.Unlock()

	var (
		snap    domain.CheckoutSnapshot
		address *domain.Address
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		snap, err = o.api.CreateCheckout(egCtx, ids)
		return err
	})
	eg.Go(func() error {
		var err error
		address, err = o.api.GetActiveAddress(egCtx)
		return err
	})
	err := eg.Wait()
	if err == nil && len(snap.Groups.ItemIDs()) == 0 {
		err = ErrEmptyCart
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status != domain.CheckoutStatusInitializing {
		return ErrAbandoned
	}
	if err != nil {
		o.lastErr = err
		o.snapshot = nil
		_ = o.transitionLocked(domain.CheckoutStatusFailed)
		o.logger.Warn("checkout initialization failed", zap.Error(err))
		return fmt.Errorf("failed to begin checkout: %w", err)
	}

	snap.Groups = pricing.Regroup(snap.Groups)
	o.snapshot = &snap
	o.address = address

	opts := []delivery.Option{delivery.WithLogger(o.logger)}
	if address != nil {
		opts = append(opts, delivery.WithAddress(address.ID))
	}
	if o.cfg.QuoteCache != nil {
		opts = append(opts, delivery.WithCache(o.cfg.QuoteCache, o.cfg.UserID+":"+snap.SnapshotID))
	}
	if o.coordinator != nil {
		o.coordinator.Close()
	}
	o.coordinator = delivery.NewCoordinator(o.api, snap.Groups.SellerIDs(), opts...)

	o.logger.Info("checkout started",
		zap.String("snapshot_id", snap.SnapshotID),
		zap.Int("groups", len(snap.Groups)),
		zap.Int("items", len(ids)))
	return o.transitionLocked(domain.CheckoutStatusAwaitingDelivery)
}

func (o *Orchestrator) awaitingCoordinator() (*delivery.Coordinator, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status != domain.CheckoutStatusAwaitingDelivery {
		return nil, ErrNotAwaitingDelivery
	}
	return o.coordinator, nil
}

func (o *Orchestrator) RequestQuote(ctx context.Context, sellerID int64) (delivery.GroupView, error) {
	c, err := o.awaitingCoordinator()
	if err != nil {
		return delivery.GroupView{}, err
	}
	return c.Request(ctx, sellerID)
}

func (o *Orchestrator) RetryQuote(ctx context.Context, sellerID int64) (delivery.GroupView, error) {
	c, err := o.awaitingCoordinator()
	if err != nil {
		return delivery.GroupView{}, err
	}
	return c.Retry(ctx, sellerID)
}

// RequestAllQuotes fans out to every seller still without a quote.
func (o *Orchestrator) RequestAllQuotes(ctx context.Context) (map[int64]error, error) {
	c, err := o.awaitingCoordinator()
	if err != nil {
		return nil, err
	}
	return c.RequestAll(ctx)
}

func (o *Orchestrator) ChooseDelivery(sellerID, optionID int64) (delivery.GroupView, error) {
	o.mu.Lock()
	if o.status != domain.CheckoutStatusAwaitingDelivery {
		o.mu.Unlock()
		return delivery.GroupView{}, ErrNotAwaitingDelivery
	}
	c := o.coordinator
	o.mu.Unlock()
	return c.Choose(sellerID, optionID)
}

// RefreshAddress re-reads the buyer's active address. A changed address
// drops every quote and delivery choice.
func (o *Orchestrator) RefreshAddress(ctx context.Context) (*domain.Address, error) {
	c, err := o.awaitingCoordinator()
	if err != nil {
		return nil, err
	}
	address, err := o.api.GetActiveAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active address: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.coordinator != c {
		return nil, ErrAbandoned
	}
	o.address = address
	var id int64
	if address != nil {
		id = address.ID
	}
	c.SetActiveAddress(id)
	return address, nil
}

// IsReadyToSubmit is false while any seller group lacks a delivery choice.
func (o *Orchestrator) IsReadyToSubmit() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status == domain.CheckoutStatusAwaitingDelivery && o.coordinator.IsComplete()
}

// Submit places the order. It is not reentrant: a second call while one is
// in flight fails immediately. On failure the snapshot and choices are kept
// so the buyer can retry.
func (o *Orchestrator) Submit(ctx context.Context) (domain.Receipt, error) {
	o.mu.Lock()
	if o.status == domain.CheckoutStatusSubmitting {
		o.mu.Unlock()
		return domain.Receipt{}, ErrSubmitInFlight
	}
	if o.status != domain.CheckoutStatusAwaitingDelivery {
		o.mu.Unlock()
		return domain.Receipt{}, ErrNotAwaitingDelivery
	}
	if !o.coordinator.IsComplete() {
		o.mu.Unlock()
		return domain.Receipt{}, ErrDeliveryUnset
	}
	snap := *o.snapshot
	choices := o.coordinator.Choices()
	totals := pricing.ComputeTotals(snap, choices, o.coordinator.Quotes())
	if err := o.transitionLocked(domain.CheckoutStatusSubmitting); err != nil {
		o.mu.Unlock()
		return domain.Receipt{}, err
	}
	o.lastErr = nil
	o.mu.Unlock()

	message, err := o.api.SubmitOrder(ctx, snap.SnapshotID, choices)

	o.mu.Lock()
	if o.status != domain.CheckoutStatusSubmitting {
		o.mu.Unlock()
		o.logger.Info("discarding order response for abandoned checkout", zap.String("snapshot_id", snap.SnapshotID))
		return domain.Receipt{}, ErrAbandoned
	}
	if err != nil {
		o.lastErr = err
		_ = o.transitionLocked(domain.CheckoutStatusAwaitingDelivery)
		o.mu.Unlock()
		o.logger.Warn("order submission failed", zap.String("snapshot_id", snap.SnapshotID), zap.Error(err))
		return domain.Receipt{}, fmt.Errorf("failed to submit order: %w", err)
	}
	receipt := domain.Receipt{
		ID:          uuid.NewString(),
		SnapshotID:  snap.SnapshotID,
		OrderRef:    message,
		UserID:      o.cfg.UserID,
		ItemIDs:     snap.Groups.ItemIDs(),
		Choices:     choices,
		Totals:      totals,
		Currency:    o.cfg.Currency,
		CompletedAt: time.Now().UTC(),
	}
	o.receipt = &receipt
	_ = o.transitionLocked(domain.CheckoutStatusCompleted)
	o.coordinator.Close()
	o.mu.Unlock()

	o.settle(ctx, receipt)
	return receipt, nil
}

// settle brings local state in line with a placed order. Failures here are
// logged only: the order already exists on the server.
func (o *Orchestrator) settle(ctx context.Context, receipt domain.Receipt) {
	o.selection.Reset()

	if _, err := o.cart.Load(ctx); err != nil {
		o.logger.Warn("cart refresh after order failed, dropping purchased entries locally", zap.Error(err))
		purchased := make(map[int64]bool, len(receipt.ItemIDs))
		for _, id := range receipt.ItemIDs {
			purchased[id] = true
		}
		var kept []domain.CartEntry
		for _, e := range o.cart.Entries() {
			if !purchased[e.CartItemID] {
				kept = append(kept, e)
			}
		}
		o.cart.ReplaceAll(kept)
	}

	if o.cfg.Receipts != nil {
		if err := o.cfg.Receipts.SaveReceipt(ctx, receipt); err != nil {
			o.logger.Error("failed to save checkout receipt", zap.String("receipt_id", receipt.ID), zap.Error(err))
		}
	}
	if o.cfg.Events != nil {
		if err := o.cfg.Events.PublishCheckoutCompleted(ctx, receipt); err != nil {
			o.logger.Error("failed to publish checkout completed", zap.String("receipt_id", receipt.ID), zap.Error(err))
		}
	}
}

// Abandon tears the checkout down. Responses still in flight are ignored.
// The selection is cleared unless an order was being submitted.
func (o *Orchestrator) Abandon() {
	o.mu.Lock()
	if o.status.IsTerminal() {
		o.mu.Unlock()
		return
	}
	pendingOrder := o.status == domain.CheckoutStatusSubmitting
	_ = o.transitionLocked(domain.CheckoutStatusAbandoned)
	if o.coordinator != nil {
		o.coordinator.Close()
	}
	o.snapshot = nil
	o.mu.Unlock()

	if !pendingOrder {
		o.selection.Reset()
	}
	o.logger.Info("checkout abandoned", zap.Bool("pending_order", pendingOrder))
}

func (o *Orchestrator) Status() domain.CheckoutStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// GroupView is one seller group of the checkout screen.
type GroupView struct {
	SellerID   int64
	SellerName string
	Entries    []domain.CartEntry
	Subtotal   domain.Money
	Delivery   delivery.GroupView
}

type View struct {
	Status     domain.CheckoutStatus
	SnapshotID string
	Address    *domain.Address
	Groups     []GroupView
	Totals     domain.Totals
	Ready      bool
	Err        error
	Receipt    *domain.Receipt
}

func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := View{
		Status:  o.status,
		Address: o.address,
		Err:     o.lastErr,
		Receipt: o.receipt,
	}
	if o.snapshot == nil || o.coordinator == nil {
		return v
	}

	v.SnapshotID = o.snapshot.SnapshotID
	deliveries := make(map[int64]delivery.GroupView)
	for _, dv := range o.coordinator.Views() {
		deliveries[dv.SellerID] = dv
	}
	for _, g := range o.snapshot.Groups {
		v.Groups = append(v.Groups, GroupView{
			SellerID:   g.SellerID,
			SellerName: g.SellerName,
			Entries:    append([]domain.CartEntry(nil), g.Entries...),
			Subtotal:   pricing.Subtotal(g),
			Delivery:   deliveries[g.SellerID],
		})
	}
	v.Totals = pricing.ComputeTotals(*o.snapshot, o.coordinator.Choices(), o.coordinator.Quotes())
	v.Ready = o.status == domain.CheckoutStatusAwaitingDelivery && o.coordinator.IsComplete()
	return v
}

// IsAbandoned reports whether err came from a torn-down checkout.
func IsAbandoned(err error) bool {
	return errors.Is(err, ErrAbandoned)
}
