package checkout

import (
	"errors"

	"github.com/fjod/go_cart/storefront-service/internal/apperror"
)

var (
	ErrEmptySelection      = apperror.NewPrecondition("selection", "select at least one item to checkout")
	ErrEmptyCart           = apperror.NewPrecondition("cart", "cart is empty, nothing to checkout")
	ErrAlreadyStarted      = apperror.NewPrecondition("checkout", "checkout is already in progress")
	ErrNotAwaitingDelivery = apperror.NewPrecondition("checkout", "checkout is not waiting for delivery choices")
	ErrDeliveryUnset       = apperror.NewPrecondition("delivery", "choose a delivery method for every pharmacy")
	ErrSubmitInFlight      = apperror.NewPrecondition("checkout", "order is already being submitted")

	ErrAbandoned           = errors.New("checkout was abandoned")
	IllegalTransitionError = errors.New("illegal transition of checkout status")
)
