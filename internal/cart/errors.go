package cart

import "github.com/fjod/go_cart/storefront-service/internal/apperror"

var (
	ErrEntryNotFound    = apperror.NewPrecondition("cart", "product not exists in cart")
	ErrQuantityBelowOne = apperror.NewPrecondition("quantity", "quantity must stay at least 1, remove the item instead")
	ErrZeroDelta        = apperror.NewPrecondition("quantity", "quantity change must not be zero")
)
