package domain

import "time"

// CheckoutSnapshot is the server-issued frozen copy of the selected entries.
type CheckoutSnapshot struct {
	SnapshotID string      `json:"snapshot_id"`
	Groups     GroupedCart `json:"groups"`
}

// UnsetDeliveryOption marks a group whose delivery method has not been chosen.
const UnsetDeliveryOption int64 = 0

type DeliveryChoice struct {
	SellerID         int64 `json:"seller_id"`
	DeliveryOptionID int64 `json:"delivery_option_id"`
}

func (c DeliveryChoice) IsSet() bool {
	return c.DeliveryOptionID != UnsetDeliveryOption
}

type DeliveryOption struct {
	OptionID int64  `json:"option_id"`
	Name     string `json:"name"`
	Cost     Money  `json:"cost"`
	ETALabel string `json:"eta_label"`
}

type DeliveryQuote struct {
	SellerID int64            `json:"seller_id"`
	Options  []DeliveryOption `json:"options"`
}

func (q DeliveryQuote) Option(optionID int64) (DeliveryOption, bool) {
	for _, o := range q.Options {
		if o.OptionID == optionID {
			return o, true
		}
	}
	return DeliveryOption{}, false
}

type Totals struct {
	SubtotalProducts Money `json:"subtotal_products"`
	SubtotalShipping Money `json:"subtotal_shipping"`
	GrandTotal       Money `json:"grand_total"`
}

// Receipt records a completed checkout.
type Receipt struct {
	ID          string           `json:"id"`
	SnapshotID  string           `json:"snapshot_id"`
	OrderRef    string           `json:"order_ref"`
	UserID      string           `json:"user_id"`
	ItemIDs     []int64          `json:"item_ids"`
	Choices     []DeliveryChoice `json:"choices"`
	Totals      Totals           `json:"totals"`
	Currency    string           `json:"currency"`
	CompletedAt time.Time        `json:"completed_at"`
}
