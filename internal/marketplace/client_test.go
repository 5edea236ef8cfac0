package marketplace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/apperror"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/marketplace/marketplacetest"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken struct {
	token       string
	invalidated atomic.Int32
}

func (s *staticToken) Token() (string, bool) { return s.token, s.token != "" }
func (s *staticToken) Invalidate()           { s.invalidated.Add(1) }

func setupClient(t *testing.T) (*Client, *marketplacetest.Server, *staticToken) {
	t.Helper()
	srv := marketplacetest.NewServer("buyer-token")
	t.Cleanup(srv.Close)

	backend, err := NewBackend(Config{BaseURL: srv.URL()}, nil)
	require.NoError(t, err)

	creds := &staticToken{token: "buyer-token"}
	return backend.Client(creds), srv, creds
}

func seedCart(srv *marketplacetest.Server) (int64, int64) {
	srv.AddProduct(marketplacetest.Product{Ref: 1, SellerID: 10, SellerName: "Apotek Sehat", Name: "Paracetamol", UnitPrice: 1500000})
	srv.AddProduct(marketplacetest.Product{Ref: 2, SellerID: 20, SellerName: "Apotek Jaya", Name: "Vitamin C", UnitPrice: 250050})
	a := srv.PutInCart(1, 2)
	b := srv.PutInCart(2, 1)
	return a, b
}

func TestGetCart(t *testing.T) {
	client, srv, _ := setupClient(t)
	a, b := seedCart(srv)

	cart, err := client.GetCart(context.Background())
	require.NoError(t, err)
	require.Len(t, cart, 2)

	assert.Equal(t, int64(10), cart[0].SellerID)
	assert.Equal(t, "Apotek Sehat", cart[0].SellerName)
	require.Len(t, cart[0].Entries, 1)
	assert.Equal(t, a, cart[0].Entries[0].CartItemID)
	assert.Equal(t, domain.Money(3000000), cart[0].Entries[0].UnitSubtotal)
	assert.Equal(t, b, cart[1].Entries[0].CartItemID)
	assert.Equal(t, domain.Money(250050), cart[1].Entries[0].UnitSubtotal)
}

func TestUpdateAndDelete(t *testing.T) {
	client, srv, _ := setupClient(t)
	a, _ := seedCart(srv)
	ctx := context.Background()

	require.NoError(t, client.UpdateCartQuantity(ctx, 1, 3))
	qty, ok := srv.Quantity(a)
	require.True(t, ok)
	assert.Equal(t, 5, qty)

	err := client.UpdateCartQuantity(ctx, 1, -5)
	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.Classify(err))

	require.NoError(t, client.DeleteCartItem(ctx, a))
	_, ok = srv.Quantity(a)
	assert.False(t, ok)
}

func TestCheckoutFlow(t *testing.T) {
	client, srv, _ := setupClient(t)
	a, b := seedCart(srv)
	srv.SetDeliveryOptions(10, marketplacetest.Option{ID: 1, Name: "JNE", Cost: 900000, Etd: "1-2"})
	srv.SetAddress(&domain.Address{ID: 5, Name: "Home", IsActive: true})
	ctx := context.Background()

	addr, err := client.GetActiveAddress(ctx)
	require.NoError(t, err)
	require.NotNil(t, addr)
	assert.Equal(t, int64(5), addr.ID)

	snap, err := client.CreateCheckout(ctx, []int64{a})
	require.NoError(t, err)
	assert.NotEmpty(t, snap.SnapshotID)
	require.Len(t, snap.Groups, 1)
	assert.Equal(t, []int64{a}, snap.Groups.ItemIDs())

	quote, err := client.GetDeliveryOptions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, quote.Options, 1)
	assert.Equal(t, domain.Money(900000), quote.Options[0].Cost)
	assert.Equal(t, "1-2", quote.Options[0].ETALabel)

	msg, err := client.SubmitOrder(ctx, snap.SnapshotID, []domain.DeliveryChoice{{SellerID: 10, DeliveryOptionID: 1}})
	require.NoError(t, err)
	assert.Contains(t, msg, "checkout success")

	orders := srv.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, []int64{a}, orders[0].ItemIDs)
	_, stillThere := srv.Quantity(b)
	assert.True(t, stillThere)
}

func TestGetActiveAddress_None(t *testing.T) {
	client, _, _ := setupClient(t)

	addr, err := client.GetActiveAddress(context.Background())
	require.NoError(t, err)
	assert.Nil(t, addr)
}

func TestUnauthorizedInvalidatesCredentials(t *testing.T) {
	client, srv, creds := setupClient(t)
	srv.SetToken("rotated")

	_, err := client.GetCart(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperror.KindAuth, apperror.Classify(err))
	assert.Equal(t, int32(1), creds.invalidated.Load())
}

func TestMissingTokenSkipsNetwork(t *testing.T) {
	client, srv, creds := setupClient(t)
	creds.token = ""

	_, err := client.GetCart(context.Background())
	assert.Equal(t, apperror.KindAuth, apperror.Classify(err))
	assert.Equal(t, 0, srv.Calls("GET /carts"))
}

func TestServerErrorIsClassified(t *testing.T) {
	client, srv, _ := setupClient(t)
	srv.FailDelivery(10, true)

	_, err := client.GetDeliveryOptions(context.Background(), 10)
	require.Error(t, err)
	assert.Equal(t, apperror.KindServer, apperror.Classify(err))
	assert.Equal(t, []apperror.FieldError{{Field: apperror.FieldServer, Detail: apperror.GenericServerMessage}}, apperror.Display(err))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	r := chi.NewRouter()
	r.Get("/carts", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	backend, err := NewBackend(Config{BaseURL: srv.URL, BreakerFailures: 2, BreakerCooldown: time.Minute}, nil)
	require.NoError(t, err)
	client := backend.Client(&staticToken{token: "t"})

	for i := 0; i < 4; i++ {
		_, err := client.GetCart(context.Background())
		assert.Equal(t, apperror.KindServer, apperror.Classify(err))
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestNewBackend_RejectsRelativeURL(t *testing.T) {
	_, err := NewBackend(Config{BaseURL: "/api"}, nil)
	assert.Error(t, err)
}
