// Package pricing groups cart entries by seller and computes checkout totals.
// Every function is pure and returns freshly allocated values.
package pricing

import "github.com/fjod/go_cart/storefront-service/internal/domain"

// Group partitions entries by seller. Sellers appear in order of their first
// entry and entries keep their relative order within a group.
func Group(entries []domain.CartEntry) domain.GroupedCart {
	var groups domain.GroupedCart
	index := make(map[int64]int)
	for _, e := range entries {
		i, ok := index[e.SellerID]
		if !ok {
			i = len(groups)
			index[e.SellerID] = i
			groups = append(groups, domain.SellerGroup{SellerID: e.SellerID, SellerName: e.SellerName})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}
	return groups
}

// Regroup normalizes a server-grouped cart, merging repeated sellers.
func Regroup(g domain.GroupedCart) domain.GroupedCart {
	return Group(g.Entries())
}

func Subtotal(group domain.SellerGroup) domain.Money {
	var total domain.Money
	for _, e := range group.Entries {
		total += e.UnitSubtotal
	}
	return total
}

func ProductsSubtotal(groups domain.GroupedCart) domain.Money {
	var total domain.Money
	for _, g := range groups {
		total += Subtotal(g)
	}
	return total
}

// SelectedSubtotal sums the entries for which selected reports true.
func SelectedSubtotal(entries []domain.CartEntry, selected func(cartItemID int64) bool) domain.Money {
	var total domain.Money
	for _, e := range entries {
		if selected(e.CartItemID) {
			total += e.UnitSubtotal
		}
	}
	return total
}

// ShippingSubtotal prices each set choice against its seller's quote.
// Unset choices and options missing from the quote count as zero.
func ShippingSubtotal(choices []domain.DeliveryChoice, quotes map[int64]domain.DeliveryQuote) domain.Money {
	var total domain.Money
	for _, c := range choices {
		if !c.IsSet() {
			continue
		}
		quote, ok := quotes[c.SellerID]
		if !ok {
			continue
		}
		if opt, ok := quote.Option(c.DeliveryOptionID); ok {
			total += opt.Cost
		}
	}
	return total
}

func ComputeTotals(snapshot domain.CheckoutSnapshot, choices []domain.DeliveryChoice, quotes map[int64]domain.DeliveryQuote) domain.Totals {
	products := ProductsSubtotal(snapshot.Groups)
	shipping := ShippingSubtotal(choices, quotes)
	return domain.Totals{
		SubtotalProducts: products,
		SubtotalShipping: shipping,
		GrandTotal:       products + shipping,
	}
}
