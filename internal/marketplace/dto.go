package marketplace

import (
	"encoding/json"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
)

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type cartItemDTO struct {
	CartItemID        int64  `json:"cart_item_id"`
	PharmacyProductID int64  `json:"pharmacy_product_id"`
	Name              string `json:"name"`
	Manufacturer      string `json:"manufacturer"`
	Image             string `json:"image,omitempty"`
	Quantity          int    `json:"quantity"`
	Subtotal          string `json:"subtotal,omitempty"`
}

type groupedCartDTO struct {
	PharmacyID   int64         `json:"pharmacy_id"`
	PharmacyName string        `json:"pharmacy_name"`
	Items        []cartItemDTO `json:"items"`
}

type checkoutSnapshotDTO struct {
	ID   string           `json:"id"`
	Data []groupedCartDTO `json:"data"`
}

type cartOverviewDTO struct {
	CartItemID        int64 `json:"cart_item_id"`
	PharmacyProductID int64 `json:"pharmacy_product_id"`
	Quantity          int   `json:"quantity"`
}

type addToCartRequest struct {
	PharmacyProductID int64 `json:"pharmacy_product_id"`
	Quantity          int   `json:"quantity"`
}

type checkoutCartRequest struct {
	IDs []int64 `json:"ids"`
}

type deliveryOptionDTO struct {
	ID   int64        `json:"id"`
	Name string       `json:"name,omitempty"`
	Cost domain.Money `json:"cost"`
	Etd  string       `json:"etd,omitempty"`
}

type deliveryDataDTO struct {
	PharmacyID int64 `json:"pharmacy_id"`
	DeliveryID int64 `json:"delivery_id"`
}

type checkoutOrderRequest struct {
	IDCart           string            `json:"id_cart"`
	ListDeliveryData []deliveryDataDTO `json:"delivery_data_list"`
}

type pharmacyDTO struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
}

func toGroupedCart(groups []groupedCartDTO) (domain.GroupedCart, error) {
	out := make(domain.GroupedCart, 0, len(groups))
	for _, g := range groups {
		group := domain.SellerGroup{
			SellerID:   g.PharmacyID,
			SellerName: g.PharmacyName,
			Entries:    make([]domain.CartEntry, 0, len(g.Items)),
		}
		for _, item := range g.Items {
			var subtotal domain.Money
			if item.Subtotal != "" {
				parsed, err := domain.ParseMoney(item.Subtotal)
				if err != nil {
					return nil, err
				}
				subtotal = parsed
			}
			group.Entries = append(group.Entries, domain.CartEntry{
				CartItemID:   item.CartItemID,
				SellerID:     g.PharmacyID,
				SellerName:   g.PharmacyName,
				ProductRef:   item.PharmacyProductID,
				ProductName:  item.Name,
				Manufacturer: item.Manufacturer,
				ImageRef:     item.Image,
				Quantity:     item.Quantity,
				UnitSubtotal: subtotal,
			})
		}
		out = append(out, group)
	}
	return out, nil
}
