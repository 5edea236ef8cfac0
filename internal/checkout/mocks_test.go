package checkout

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
)

// MockMarketplace implements API and cart.API for testing
type MockMarketplace struct {
	m sync.Mutex

	Cart        domain.GroupedCart
	Address     *domain.Address
	AddressErr  error
	Quotes      map[int64]domain.DeliveryQuote
	QuoteErrs   map[int64]error
	CheckoutErr error
	SnapshotID  string
	SubmitErr   error
	SubmitGate  chan struct{}
	SubmitStart chan struct{}

	CheckoutCalls [][]int64
	SubmitCalls   []submitCall
	QuoteCalls    int
}

type submitCall struct {
	SnapshotID string
	Choices    []domain.DeliveryChoice
}

func (m *MockMarketplace) GetCart(context.Context) (domain.GroupedCart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	out := make(domain.GroupedCart, len(m.Cart))
	for i, g := range m.Cart {
		out[i] = g
		out[i].Entries = append([]domain.CartEntry(nil), g.Entries...)
	}
	return out, nil
}

func (m *MockMarketplace) UpdateCartQuantity(context.Context, int64, int) error { return nil }

func (m *MockMarketplace) DeleteCartItem(context.Context, int64) error { return nil }

func (m *MockMarketplace) CreateCheckout(_ context.Context, ids []int64) (domain.CheckoutSnapshot, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.CheckoutCalls = append(m.CheckoutCalls, ids)
	if m.CheckoutErr != nil {
		return domain.CheckoutSnapshot{}, m.CheckoutErr
	}
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	snap := domain.CheckoutSnapshot{SnapshotID: m.SnapshotID}
	if snap.SnapshotID == "" {
		snap.SnapshotID = "snap-1"
	}
	for _, g := range m.Cart {
		group := domain.SellerGroup{SellerID: g.SellerID, SellerName: g.SellerName}
		for _, e := range g.Entries {
			if wanted[e.CartItemID] {
				group.Entries = append(group.Entries, e)
			}
		}
		if len(group.Entries) > 0 {
			snap.Groups = append(snap.Groups, group)
		}
	}
	return snap, nil
}

func (m *MockMarketplace) GetActiveAddress(context.Context) (*domain.Address, error) {
	m.m.Lock()
	defer m.m.Unlock()
	return m.Address, m.AddressErr
}

func (m *MockMarketplace) GetDeliveryOptions(_ context.Context, sellerID int64) (domain.DeliveryQuote, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.QuoteCalls++
	if err := m.QuoteErrs[sellerID]; err != nil {
		return domain.DeliveryQuote{}, err
	}
	return m.Quotes[sellerID], nil
}

func (m *MockMarketplace) SubmitOrder(ctx context.Context, snapshotID string, choices []domain.DeliveryChoice) (string, error) {
	m.m.Lock()
	m.SubmitCalls = append(m.SubmitCalls, submitCall{SnapshotID: snapshotID, Choices: choices})
	gate, start := m.SubmitGate, m.SubmitStart
	m.m.Unlock()

	if start != nil {
		close(start)
	}
	if gate != nil {
		<-gate
	}

	m.m.Lock()
	defer m.m.Unlock()
	if m.SubmitErr != nil {
		return "", m.SubmitErr
	}
	purchased := make(map[int64]bool)
	if n := len(m.CheckoutCalls); n > 0 {
		for _, id := range m.CheckoutCalls[n-1] {
			purchased[id] = true
		}
	}
	var kept domain.GroupedCart
	for _, g := range m.Cart {
		group := domain.SellerGroup{SellerID: g.SellerID, SellerName: g.SellerName}
		for _, e := range g.Entries {
			if !purchased[e.CartItemID] {
				group.Entries = append(group.Entries, e)
			}
		}
		if len(group.Entries) > 0 {
			kept = append(kept, group)
		}
	}
	m.Cart = kept
	return "checkout success", nil
}

func (m *MockMarketplace) setCart(cart domain.GroupedCart) {
	m.m.Lock()
	defer m.m.Unlock()
	m.Cart = cart
}

type MockReceipts struct {
	m     sync.Mutex
	Saved []domain.Receipt
	Err   error
}

func (m *MockReceipts) SaveReceipt(_ context.Context, r domain.Receipt) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.Saved = append(m.Saved, r)
	return m.Err
}

type MockEvents struct {
	m         sync.Mutex
	Published []domain.Receipt
}

func (m *MockEvents) PublishCheckoutCompleted(_ context.Context, r domain.Receipt) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.Published = append(m.Published, r)
	return nil
}
