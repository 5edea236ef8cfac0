// Package features runs the storefront behaviour scenarios against an
// in-memory marketplace.
package features

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/fjod/go_cart/storefront-service/internal/apperror"
	"github.com/fjod/go_cart/storefront-service/internal/auth"
	"github.com/fjod/go_cart/storefront-service/internal/auth/authtest"
	"github.com/fjod/go_cart/storefront-service/internal/checkout"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/marketplace"
	"github.com/fjod/go_cart/storefront-service/internal/marketplace/marketplacetest"
	"github.com/fjod/go_cart/storefront-service/internal/reconciler"
	"github.com/fjod/go_cart/storefront-service/internal/session"
)

// World is the state of one scenario.
type World struct {
	tb       testing.TB
	srv      *marketplacetest.Server
	registry *session.Registry
	session  *session.Session
	checkout *checkout.Orchestrator

	products map[string]int64
	items    map[string]int64
	nextRef  int64
	puts     int
	lastErr  error
}

func newWorld(tb testing.TB) *World {
	token := authtest.Token(tb, "42")
	return &World{
		tb:       tb,
		srv:      marketplacetest.NewServer(token),
		products: make(map[string]int64),
		items:    make(map[string]int64),
	}
}

func (w *World) close() {
	if w.checkout != nil {
		w.checkout.Abandon()
	}
	w.srv.Close()
}

// buyer opens the buyer session on first use, after the cart is seeded.
func (w *World) buyer() (*session.Session, error) {
	if w.session != nil {
		return w.session, nil
	}
	backend, err := marketplace.NewBackend(marketplace.Config{BaseURL: w.srv.URL()}, nil)
	if err != nil {
		return nil, err
	}
	w.registry = session.NewRegistry(session.Dependencies{
		Backend: backend,
		Parser:  auth.NewParser(authtest.Secret),
	})
	s, err := w.registry.Acquire(context.Background(), authtest.Token(w.tb, "42"))
	if err != nil {
		return nil, err
	}
	w.session = s
	return s, nil
}

func (w *World) item(name string) (int64, error) {
	id, ok := w.items[name]
	if !ok {
		return 0, fmt.Errorf("no cart entry named %q", name)
	}
	return id, nil
}

func (w *World) aCartHolding(qty int, name string, sellerID int64, price string) error {
	unit, err := domain.ParseMoney(price)
	if err != nil {
		return err
	}
	w.nextRef++
	w.products[name] = w.nextRef
	w.srv.AddProduct(marketplacetest.Product{
		Ref:        w.nextRef,
		SellerID:   sellerID,
		SellerName: fmt.Sprintf("Apotek %d", sellerID),
		Name:       name,
		UnitPrice:  unit,
	})
	w.items[name] = w.srv.PutInCart(w.nextRef, qty)
	return nil
}

func (w *World) sellerDelivers(sellerID, optionID int64, name, cost string) error {
	amount, err := domain.ParseMoney(cost)
	if err != nil {
		return err
	}
	w.srv.SetDeliveryOptions(sellerID, marketplacetest.Option{ID: optionID, Name: name, Cost: amount, Etd: "1-2"})
	return nil
}

func (w *World) activeAddress() error {
	w.srv.SetAddress(&domain.Address{ID: 7, Name: "Home", City: "Jakarta", IsActive: true})
	return nil
}

func (w *World) selects(name string) error {
	s, err := w.buyer()
	if err != nil {
		return err
	}
	id, err := w.item(name)
	if err != nil {
		return err
	}
	if s.Selection().Contains(id) {
		return nil
	}
	if !s.Selection().Toggle(id) {
		return fmt.Errorf("%q could not be selected", name)
	}
	return nil
}

func (w *World) decrements(name string) error {
	s, err := w.buyer()
	if err != nil {
		return err
	}
	id, err := w.item(name)
	if err != nil {
		return err
	}
	w.puts = w.srv.Calls("PUT /carts")
	_, w.lastErr = s.Reconciler().Decrement(context.Background(), id)
	return nil
}

func (w *World) increments(name string) error {
	s, err := w.buyer()
	if err != nil {
		return err
	}
	id, err := w.item(name)
	if err != nil {
		return err
	}
	_, err = s.Reconciler().Increment(context.Background(), id)
	return err
}

func (w *World) confirmsRemoval(name string) error {
	id, err := w.item(name)
	if err != nil {
		return err
	}
	return w.session.Reconciler().ConfirmDelete(context.Background(), id)
}

func (w *World) cancelsRemoval(name string) error {
	id, err := w.item(name)
	if err != nil {
		return err
	}
	w.session.Reconciler().CancelDelete(id)
	return nil
}

func (w *World) askedToConfirm() error {
	if !errors.Is(w.lastErr, reconciler.ErrConfirmationRequired) {
		return fmt.Errorf("expected confirmation request, got %v", w.lastErr)
	}
	return nil
}

func (w *World) noQuantityUpdate() error {
	if got := w.srv.Calls("PUT /carts"); got != w.puts {
		return fmt.Errorf("expected no quantity update, marketplace saw %d", got-w.puts)
	}
	return nil
}

func (w *World) cartContains(qty int, name string) error {
	id, err := w.item(name)
	if err != nil {
		return err
	}
	entry, ok := w.session.Cart().Get(id)
	if !ok {
		return fmt.Errorf("cart does not contain %q", name)
	}
	if entry.Quantity != qty {
		return fmt.Errorf("expected %d x %q, cart holds %d", qty, name, entry.Quantity)
	}
	if server, _ := w.srv.Quantity(id); server != qty {
		return fmt.Errorf("expected marketplace to hold %d x %q, got %d", qty, name, server)
	}
	return nil
}

func (w *World) cartLacks(name string) error {
	id, err := w.item(name)
	if err != nil {
		return err
	}
	if w.session.Cart().Has(id) {
		return fmt.Errorf("cart still contains %q", name)
	}
	return nil
}

func (w *World) selectionContains(name string) error {
	id, err := w.item(name)
	if err != nil {
		return err
	}
	if !w.session.Selection().Contains(id) {
		return fmt.Errorf("selection does not contain %q", name)
	}
	return nil
}

func (w *World) selectionLacks(name string) error {
	id, err := w.item(name)
	if err != nil {
		return err
	}
	if w.session.Selection().Contains(id) {
		return fmt.Errorf("selection still contains %q", name)
	}
	return nil
}

func (w *World) quotesFailing(sellerID int64) error {
	w.srv.FailDelivery(sellerID, true)
	return nil
}

func (w *World) quotesRecover(sellerID int64) error {
	w.srv.FailDelivery(sellerID, false)
	return nil
}

func (w *World) startsCheckout() error {
	s, err := w.buyer()
	if err != nil {
		return err
	}
	w.checkout, w.lastErr = s.BeginCheckout(context.Background())
	return nil
}

func (w *World) requestsAllQuotes() error {
	_, err := w.checkout.RequestAllQuotes(context.Background())
	return err
}

func (w *World) retriesQuote(sellerID int64) error {
	_, err := w.checkout.RetryQuote(context.Background(), sellerID)
	return err
}

func (w *World) quoteStatus(sellerID int64, want string) error {
	for _, g := range w.checkout.View().Groups {
		if g.SellerID == sellerID {
			if got := g.Delivery.Status.String(); got != want {
				return fmt.Errorf("seller %d quote is %s, want %s", sellerID, got, want)
			}
			return nil
		}
	}
	return fmt.Errorf("seller %d is not in the checkout", sellerID)
}

func (w *World) chooses(optionID, sellerID int64) error {
	_, err := w.checkout.ChooseDelivery(sellerID, optionID)
	return err
}

func (w *World) cannotSubmit() error {
	if w.checkout.IsReadyToSubmit() {
		return errors.New("checkout reports ready to submit")
	}
	_, err := w.checkout.Submit(context.Background())
	if !errors.Is(err, checkout.ErrDeliveryUnset) {
		return fmt.Errorf("expected unset delivery error, got %v", err)
	}
	if n := len(w.srv.Orders()); n != 0 {
		return fmt.Errorf("marketplace received %d orders", n)
	}
	return nil
}

func (w *World) submits() error {
	_, err := w.checkout.Submit(context.Background())
	return err
}

func (w *World) grandTotal(want string) error {
	return w.totalEquals("grand total", w.checkout.View().Totals.GrandTotal, want)
}

func (w *World) productsSubtotal(want string) error {
	return w.totalEquals("products subtotal", w.checkout.View().Totals.SubtotalProducts, want)
}

func (w *World) totalEquals(label string, got domain.Money, want string) error {
	expected, err := domain.ParseMoney(want)
	if err != nil {
		return err
	}
	if got != expected {
		return fmt.Errorf("%s is %s, want %s", label, got, expected)
	}
	return nil
}

func (w *World) ordersReceived(orders, choices int) error {
	got := w.srv.Orders()
	if len(got) != orders {
		return fmt.Errorf("marketplace received %d orders, want %d", len(got), orders)
	}
	if len(got[0].Delivery) != choices {
		return fmt.Errorf("order carries %d delivery choices, want %d", len(got[0].Delivery), choices)
	}
	return nil
}

func (w *World) cartEmpty() error {
	if n := w.session.Cart().Count(); n != 0 {
		return fmt.Errorf("cart still holds %d items", n)
	}
	return nil
}

func (w *World) checkoutHolds(qty int, name string) error {
	id, err := w.item(name)
	if err != nil {
		return err
	}
	for _, g := range w.checkout.View().Groups {
		for _, e := range g.Entries {
			if e.CartItemID == id {
				if e.Quantity != qty {
					return fmt.Errorf("checkout holds %d x %q, want %d", e.Quantity, name, qty)
				}
				return nil
			}
		}
	}
	return fmt.Errorf("checkout does not hold %q", name)
}

func (w *World) sellerGroups(n int) error {
	if got := len(w.checkout.View().Groups); got != n {
		return fmt.Errorf("checkout has %d seller groups, want %d", got, n)
	}
	return nil
}

func (w *World) refusedWith(field string) error {
	if apperror.Classify(w.lastErr) != apperror.KindPrecondition {
		return fmt.Errorf("expected a precondition error, got %v", w.lastErr)
	}
	display := apperror.Display(w.lastErr)
	if len(display) != 1 || display[0].Field != field {
		return fmt.Errorf("expected refusal on %q, got %v", field, display)
	}
	return nil
}

func (w *World) noCheckoutCreated() error {
	if n := w.srv.Calls("POST /carts/checkout"); n != 0 {
		return fmt.Errorf("marketplace saw %d checkout calls", n)
	}
	return nil
}

// InitializeScenario registers the storefront steps. godog calls it once per
// scenario, so each scenario gets its own marketplace.
func InitializeScenario(tb testing.TB) func(*godog.ScenarioContext) {
	return func(ctx *godog.ScenarioContext) {
		w := newWorld(tb)
		ctx.After(func(c context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
			w.close()
			return c, nil
		})

		ctx.Step(`^a cart holding (\d+) x "([^"]*)" from seller (\d+) at ([\d.]+)$`, w.aCartHolding)
		ctx.Step(`^seller (\d+) delivers with option (\d+) "([^"]*)" at ([\d.]+)$`, w.sellerDelivers)
		ctx.Step(`^the buyer has an active address$`, w.activeAddress)
		ctx.Step(`^the buyer (?:has selected|selects) "([^"]*)"$`, w.selects)
		ctx.Step(`^delivery quotes for seller (\d+) are failing$`, w.quotesFailing)
		ctx.Step(`^delivery quotes for seller (\d+) recover$`, w.quotesRecover)

		ctx.Step(`^the buyer decrements "([^"]*)"$`, w.decrements)
		ctx.Step(`^the buyer increments "([^"]*)"$`, w.increments)
		ctx.Step(`^the buyer confirms the removal of "([^"]*)"$`, w.confirmsRemoval)
		ctx.Step(`^the buyer cancels the removal of "([^"]*)"$`, w.cancelsRemoval)
		ctx.Step(`^the buyer starts checkout$`, w.startsCheckout)
		ctx.Step(`^the buyer requests all delivery quotes$`, w.requestsAllQuotes)
		ctx.Step(`^the buyer retries the quote for seller (\d+)$`, w.retriesQuote)
		ctx.Step(`^the buyer chooses option (\d+) for seller (\d+)$`, w.chooses)
		ctx.Step(`^the buyer submits the order$`, w.submits)

		ctx.Step(`^the buyer is asked to confirm the removal$`, w.askedToConfirm)
		ctx.Step(`^no quantity update was sent to the marketplace$`, w.noQuantityUpdate)
		ctx.Step(`^the cart still contains (\d+) x "([^"]*)"$`, w.cartContains)
		ctx.Step(`^the cart does not contain "([^"]*)"$`, w.cartLacks)
		ctx.Step(`^the selection contains "([^"]*)"$`, w.selectionContains)
		ctx.Step(`^the selection does not contain "([^"]*)"$`, w.selectionLacks)
		ctx.Step(`^the quote for seller (\d+) is "([^"]*)"$`, w.quoteStatus)
		ctx.Step(`^the order cannot be submitted yet$`, w.cannotSubmit)
		ctx.Step(`^the grand total is ([\d.]+)$`, w.grandTotal)
		ctx.Step(`^the products subtotal is ([\d.]+)$`, w.productsSubtotal)
		ctx.Step(`^the marketplace received (\d+) order with (\d+) delivery choices$`, w.ordersReceived)
		ctx.Step(`^the cart is empty$`, w.cartEmpty)
		ctx.Step(`^the checkout holds (\d+) x "([^"]*)"$`, w.checkoutHolds)
		ctx.Step(`^the checkout has (\d+) seller groups?$`, w.sellerGroups)
		ctx.Step(`^the checkout is refused with "([^"]*)"$`, w.refusedWith)
		ctx.Step(`^no checkout was created on the marketplace$`, w.noCheckoutCreated)
	}
}
