package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/apperror"
	"github.com/fjod/go_cart/storefront-service/internal/auth"
	"github.com/fjod/go_cart/storefront-service/internal/cart"
	"github.com/fjod/go_cart/storefront-service/internal/checkout"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/marketplace"
	"github.com/fjod/go_cart/storefront-service/internal/reconciler"
	"github.com/fjod/go_cart/storefront-service/internal/selection"
	"go.uber.org/zap"
)

var ErrNoCheckout = apperror.NewPrecondition("checkout", "no checkout in progress")

// Session is everything the storefront keeps for one signed-in buyer.
type Session struct {
	userID string
	creds  *auth.Credentials
	client *marketplace.Client
	deps   *Dependencies
	logger *zap.Logger

	cart       *cart.Store
	selection  *selection.Set
	reconciler *reconciler.Reconciler

	openMu sync.Mutex
	opened bool

	mu       sync.Mutex
	checkout *checkout.Orchestrator
	lastSeen time.Time
}

func newSession(userID string, creds *auth.Credentials, deps *Dependencies) *Session {
	logger := deps.Logger.With(zap.String("user_id", userID))
	client := deps.Backend.Client(creds)

	storeOpts := []cart.Option{cart.WithLogger(logger), cart.WithOverview(client)}
	if deps.ResolveSellerNames {
		storeOpts = append(storeOpts, cart.WithDirectory(client))
	}
	store := cart.NewStore(client, storeOpts...)

	selOpts := []selection.Option{selection.WithLogger(logger)}
	if deps.Selections != nil {
		selOpts = append(selOpts, selection.WithRepository(deps.Selections, userID))
	}
	sel := selection.NewSet(store, selOpts...)

	return &Session{
		userID:     userID,
		creds:      creds,
		client:     client,
		deps:       deps,
		logger:     logger,
		cart:       store,
		selection:  sel,
		reconciler: reconciler.New(store, sel, logger),
	}
}

// open loads the cart and the persisted selection once per session.
func (s *Session) open(ctx context.Context) error {
	s.openMu.Lock()
	defer s.openMu.Unlock()
	if s.opened {
		return nil
	}
	if _, err := s.reconciler.Refresh(ctx); err != nil {
		return err
	}
	if err := s.selection.Restore(ctx); err != nil {
		s.logger.Warn("failed to restore selection", zap.Error(err))
	}
	s.opened = true
	return nil
}

func (s *Session) UserID() string                     { return s.userID }
func (s *Session) Credentials() *auth.Credentials     { return s.creds }
func (s *Session) Cart() *cart.Store                  { return s.cart }
func (s *Session) Selection() *selection.Set          { return s.selection }
func (s *Session) Reconciler() *reconciler.Reconciler { return s.reconciler }
func (s *Session) Marketplace() *marketplace.Client   { return s.client }

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Checkout returns the current checkout, or ErrNoCheckout.
func (s *Session) Checkout() (*checkout.Orchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkout == nil {
		return nil, ErrNoCheckout
	}
	return s.checkout, nil
}

// BeginCheckout starts a checkout from the current selection. A checkout
// that is already running is returned as is; a failed one is retried.
func (s *Session) BeginCheckout(ctx context.Context) (*checkout.Orchestrator, error) {
	s.mu.Lock()
	o := s.checkout
	if o != nil {
		switch st := o.Status(); {
		case st == domain.CheckoutStatusIdle || st == domain.CheckoutStatusFailed:
		case st.IsTerminal():
			o = nil
		default:
			s.mu.Unlock()
			return o, nil
		}
	}
	if o == nil {
		o = checkout.NewOrchestrator(s.client, s.cart, s.selection, checkout.Config{
			UserID:     s.userID,
			Currency:   s.deps.Currency,
			QuoteCache: s.deps.QuoteCache,
			Receipts:   s.deps.Receipts,
			Events:     s.deps.Events,
			Logger:     s.logger,
		})
		s.checkout = o
	}
	s.mu.Unlock()

	if err := o.Begin(ctx); err != nil {
		if errors.Is(err, checkout.ErrAlreadyStarted) {
			return o, nil
		}
		return o, err
	}
	return o, nil
}

// AbandonCheckout tears down the current checkout, if any.
func (s *Session) AbandonCheckout() {
	s.mu.Lock()
	o := s.checkout
	s.checkout = nil
	s.mu.Unlock()
	if o != nil {
		o.Abandon()
	}
}

func (s *Session) submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkout != nil && s.checkout.Status() == domain.CheckoutStatusSubmitting
}

func (s *Session) completedReceipt() string {
	s.mu.Lock()
	o := s.checkout
	s.mu.Unlock()
	if o == nil {
		return ""
	}
	if r := o.View().Receipt; r != nil {
		return r.ID
	}
	return ""
}

func (s *Session) String() string {
	return fmt.Sprintf("session(%s)", s.userID)
}
