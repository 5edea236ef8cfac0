package domain

// CartEntry is one line of the buyer's cart as the marketplace reports it.
type CartEntry struct {
	CartItemID   int64  `json:"cart_item_id"`
	SellerID     int64  `json:"seller_id"`
	SellerName   string `json:"seller_name"`
	ProductRef   int64  `json:"product_ref"`
	ProductName  string `json:"product_name"`
	Manufacturer string `json:"manufacturer"`
	ImageRef     string `json:"image_ref"`
	Quantity     int    `json:"quantity"`
	// UnitSubtotal is the server-computed price of the whole line.
	UnitSubtotal Money `json:"unit_subtotal"`
}

type SellerGroup struct {
	SellerID   int64       `json:"seller_id"`
	SellerName string      `json:"seller_name"`
	Entries    []CartEntry `json:"entries"`
}

// GroupedCart is ordered by first appearance of each seller.
type GroupedCart []SellerGroup

func (g GroupedCart) Entries() []CartEntry {
	var out []CartEntry
	for _, group := range g {
		out = append(out, group.Entries...)
	}
	return out
}

func (g GroupedCart) ItemIDs() []int64 {
	var ids []int64
	for _, group := range g {
		for _, e := range group.Entries {
			ids = append(ids, e.CartItemID)
		}
	}
	return ids
}

func (g GroupedCart) SellerIDs() []int64 {
	ids := make([]int64, 0, len(g))
	for _, group := range g {
		ids = append(ids, group.SellerID)
	}
	return ids
}

func (g GroupedCart) Group(sellerID int64) (SellerGroup, bool) {
	for _, group := range g {
		if group.SellerID == sellerID {
			return group, true
		}
	}
	return SellerGroup{}, false
}

// CartOverviewItem backs the cart badge counter.
type CartOverviewItem struct {
	CartItemID int64 `json:"cart_item_id"`
	ProductRef int64 `json:"product_ref"`
	Quantity   int   `json:"quantity"`
}

type Address struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
	Province    string `json:"province"`
	City        string `json:"city"`
	District    string `json:"district"`
	SubDistrict string `json:"sub_district"`
	PostalCode  string `json:"postal_code"`
	IsActive    bool   `json:"is_active"`
}

type Pharmacy struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
}
