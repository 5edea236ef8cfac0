package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/apperror"
	"github.com/fjod/go_cart/storefront-service/internal/auth"
	"github.com/fjod/go_cart/storefront-service/internal/checkout"
	"github.com/fjod/go_cart/storefront-service/internal/delivery"
	"github.com/fjod/go_cart/storefront-service/internal/marketplace"
	"github.com/fjod/go_cart/storefront-service/internal/publisher"
	"github.com/fjod/go_cart/storefront-service/internal/selection"
	"go.uber.org/zap"
)

const DefaultIdleTTL = 30 * time.Minute

// ClientFactory hands out marketplace clients bound to one buyer.
type ClientFactory interface {
	Client(creds marketplace.TokenSource) *marketplace.Client
}

type Dependencies struct {
	Backend ClientFactory
	Parser  *auth.Parser

	QuoteCache delivery.QuoteCache
	Selections selection.Repository
	Receipts   checkout.ReceiptRecorder
	Events     checkout.EventPublisher

	Currency           string
	ResolveSellerNames bool
	IdleTTL            time.Duration
	Logger             *zap.Logger
}

// Registry keeps one Session per buyer.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	deps     Dependencies
	now      func() time.Time
	logger   *zap.Logger
}

func NewRegistry(deps Dependencies) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.IdleTTL <= 0 {
		deps.IdleTTL = DefaultIdleTTL
	}
	if deps.Parser == nil {
		deps.Parser = auth.NewParser("")
	}
	return &Registry{
		sessions: make(map[string]*Session),
		deps:     deps,
		now:      time.Now,
		logger:   deps.Logger,
	}
}

// Acquire returns the buyer's session for token, creating and loading it on
// first use. A newer token for the same buyer replaces the stored one.
func (r *Registry) Acquire(ctx context.Context, token string) (*Session, error) {
	claims, err := r.deps.Parser.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrUnauthorized, err)
	}
	userID := claims.Subject

	r.mu.Lock()
	s, ok := r.sessions[userID]
	if ok {
		if current, valid := s.creds.Token(); !valid || current != token {
			s.creds.Refresh(token, claims)
		}
	} else {
		creds := auth.NewCredentials(token, claims)
		s = newSession(userID, creds, &r.deps)
		creds.OnInvalidate(func() { r.evict(userID, s) })
		r.sessions[userID] = s
		r.logger.Info("session created", zap.String("user_id", userID))
	}
	r.mu.Unlock()

	s.touch(r.now())
	if err := s.open(ctx); err != nil {
		r.evict(userID, s)
		return nil, err
	}
	return s, nil
}

// Lookup returns an existing session without touching the marketplace.
func (r *Registry) Lookup(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict drops the buyer's session and abandons its checkout.
func (r *Registry) Evict(userID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	r.mu.Unlock()
	if ok {
		r.evict(userID, s)
	}
}

func (r *Registry) evict(userID string, s *Session) {
	r.mu.Lock()
	if r.sessions[userID] != s {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, userID)
	r.mu.Unlock()

	s.AbandonCheckout()
	r.logger.Info("session evicted", zap.String("user_id", userID))
}

// Sweep evicts sessions idle for longer than the configured TTL. Sessions
// with an order in flight are kept.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.deps.IdleTTL)

	r.mu.Lock()
	var idle []*Session
	for _, s := range r.sessions {
		if s.idleSince().Before(cutoff) && !s.submitting() {
			idle = append(idle, s)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		r.evict(s.userID, s)
	}
	return len(idle)
}

func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("idle sessions evicted", zap.Int("count", n))
			}
		}
	}
}

// HandleCheckoutCompleted refreshes the buyer's cart after an order placed
// through another storefront instance.
func (r *Registry) HandleCheckoutCompleted(ctx context.Context, event publisher.CheckoutCompletedEvent) {
	s, ok := r.Lookup(event.UserID)
	if !ok {
		return
	}
	if s.completedReceipt() == event.ReceiptID {
		return
	}
	if _, err := s.reconciler.Refresh(ctx); err != nil {
		r.logger.Warn("cart refresh after remote checkout failed",
			zap.String("user_id", event.UserID),
			zap.String("receipt_id", event.ReceiptID),
			zap.Error(err))
		return
	}
	r.logger.Info("cart refreshed after remote checkout",
		zap.String("user_id", event.UserID),
		zap.String("receipt_id", event.ReceiptID))
}
