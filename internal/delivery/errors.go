package delivery

import (
	"errors"

	"github.com/fjod/go_cart/storefront-service/internal/apperror"
)

var (
	ErrAddressRequired = apperror.NewPrecondition("address", "set an address first before calculating shipping cost")
	ErrUnknownSeller   = apperror.NewPrecondition("delivery", "seller is not part of this checkout")
	ErrQuoteNotLoaded  = apperror.NewPrecondition("delivery", "shipping cost has not been calculated yet")
	ErrUnknownOption   = apperror.NewPrecondition("delivery", "invalid delivery data")

	// ErrStale is returned when a quote arrives after the address changed
	// or the coordinator was closed; the result is discarded.
	ErrStale  = errors.New("delivery quote is stale")
	ErrClosed = errors.New("delivery coordinator closed")

	ErrInvalidTransition = errors.New("invalid delivery quote transition")
)
