package marketplace

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fjod/go_cart/storefront-service/internal/apperror"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
)

func (c *Client) GetCart(ctx context.Context) (domain.GroupedCart, error) {
	var groups []groupedCartDTO
	if _, err := c.do(ctx, http.MethodGet, "/carts", nil, nil, &groups); err != nil {
		return nil, err
	}
	cart, err := toGroupedCart(groups)
	if err != nil {
		return nil, &apperror.APIError{Status: http.StatusOK, Errors: apperror.ServerErrors(), Cause: err}
	}
	return cart, nil
}

func (c *Client) GetCartOverview(ctx context.Context) ([]domain.CartOverviewItem, error) {
	var items []cartOverviewDTO
	if _, err := c.do(ctx, http.MethodGet, "/carts/overview", nil, nil, &items); err != nil {
		return nil, err
	}
	out := make([]domain.CartOverviewItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.CartOverviewItem{
			CartItemID: item.CartItemID,
			ProductRef: item.PharmacyProductID,
			Quantity:   item.Quantity,
		})
	}
	return out, nil
}

// UpdateCartQuantity adds delta (which may be negative) to the product's quantity.
func (c *Client) UpdateCartQuantity(ctx context.Context, productRef int64, delta int) error {
	_, err := c.do(ctx, http.MethodPut, "/carts", nil, addToCartRequest{
		PharmacyProductID: productRef,
		Quantity:          delta,
	}, nil)
	return err
}

func (c *Client) DeleteCartItem(ctx context.Context, cartItemID int64) error {
	_, err := c.do(ctx, http.MethodDelete, "/carts/"+strconv.FormatInt(cartItemID, 10), nil, nil, nil)
	return err
}

func (c *Client) CreateCheckout(ctx context.Context, cartItemIDs []int64) (domain.CheckoutSnapshot, error) {
	var snap checkoutSnapshotDTO
	if _, err := c.do(ctx, http.MethodPost, "/carts/checkout", nil, checkoutCartRequest{IDs: cartItemIDs}, &snap); err != nil {
		return domain.CheckoutSnapshot{}, err
	}
	if snap.ID == "" {
		return domain.CheckoutSnapshot{}, &apperror.APIError{
			Status: http.StatusOK,
			Errors: apperror.ServerErrors(),
			Cause:  errors.New("checkout snapshot without id"),
		}
	}
	groups, err := toGroupedCart(snap.Data)
	if err != nil {
		return domain.CheckoutSnapshot{}, &apperror.APIError{Status: http.StatusOK, Errors: apperror.ServerErrors(), Cause: err}
	}
	return domain.CheckoutSnapshot{SnapshotID: snap.ID, Groups: groups}, nil
}

func (c *Client) GetDeliveryOptions(ctx context.Context, sellerID int64) (domain.DeliveryQuote, error) {
	query := url.Values{}
	query.Set("pharmacy_id", strconv.FormatInt(sellerID, 10))

	var options []deliveryOptionDTO
	if _, err := c.do(ctx, http.MethodGet, "/carts/checkout/delivery", query, nil, &options); err != nil {
		return domain.DeliveryQuote{}, err
	}

	quote := domain.DeliveryQuote{SellerID: sellerID, Options: make([]domain.DeliveryOption, 0, len(options))}
	for _, o := range options {
		quote.Options = append(quote.Options, domain.DeliveryOption{
			OptionID: o.ID,
			Name:     o.Name,
			Cost:     o.Cost,
			ETALabel: o.Etd,
		})
	}
	return quote, nil
}

// SubmitOrder places the order and returns the marketplace's confirmation message.
func (c *Client) SubmitOrder(ctx context.Context, snapshotID string, choices []domain.DeliveryChoice) (string, error) {
	req := checkoutOrderRequest{IDCart: snapshotID, ListDeliveryData: make([]deliveryDataDTO, 0, len(choices))}
	for _, choice := range choices {
		req.ListDeliveryData = append(req.ListDeliveryData, deliveryDataDTO{
			PharmacyID: choice.SellerID,
			DeliveryID: choice.DeliveryOptionID,
		})
	}
	return c.do(ctx, http.MethodPost, "/carts/checkout/order", nil, req, nil)
}

// GetActiveAddress returns nil when the buyer has no active address.
func (c *Client) GetActiveAddress(ctx context.Context) (*domain.Address, error) {
	query := url.Values{}
	query.Set("active", "true")

	var addresses []domain.Address
	if _, err := c.do(ctx, http.MethodGet, "/addresses/user", query, nil, &addresses); err != nil {
		return nil, err
	}
	for i := range addresses {
		if addresses[i].IsActive {
			return &addresses[i], nil
		}
	}
	if len(addresses) > 0 {
		return &addresses[0], nil
	}
	return nil, nil
}

func (c *Client) GetPharmacy(ctx context.Context, pharmacyID int64) (domain.Pharmacy, error) {
	var p pharmacyDTO
	if _, err := c.do(ctx, http.MethodGet, "/pharmacies/"+strconv.FormatInt(pharmacyID, 10), nil, nil, &p); err != nil {
		return domain.Pharmacy{}, err
	}
	return domain.Pharmacy{ID: p.ID, Name: p.Name, Address: p.Address, City: p.City}, nil
}
