package http

import (
	"net/http"

	"github.com/fjod/go_cart/storefront-service/internal/apperror"
	"github.com/fjod/go_cart/storefront-service/internal/checkout"
	"github.com/fjod/go_cart/storefront-service/internal/delivery"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	responder
}

func NewCheckoutHandler(logger *zap.Logger) *CheckoutHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutHandler{responder{logger: logger}}
}

type ChooseDeliveryRequestDTO struct {
	OptionID int64 `json:"option_id" validate:"required,gt=0"`
}

type DeliveryDTO struct {
	Status   string                  `json:"status"`
	Options  []domain.DeliveryOption `json:"options"`
	OptionID int64                   `json:"option_id"`
	Cost     domain.Money            `json:"cost"`
	Error    []apperror.FieldError   `json:"error,omitempty"`
}

type CheckoutGroupDTO struct {
	SellerID   int64              `json:"seller_id"`
	SellerName string             `json:"seller_name"`
	Entries    []domain.CartEntry `json:"entries"`
	Subtotal   domain.Money       `json:"subtotal"`
	Delivery   DeliveryDTO        `json:"delivery"`
}

type CheckoutResponseDTO struct {
	Status     string                `json:"status"`
	SnapshotID string                `json:"snapshot_id,omitempty"`
	Address    *domain.Address       `json:"address"`
	Groups     []CheckoutGroupDTO    `json:"groups"`
	Totals     domain.Totals         `json:"totals"`
	Ready      bool                  `json:"ready"`
	Error      []apperror.FieldError `json:"error,omitempty"`
	Receipt    *domain.Receipt       `json:"receipt,omitempty"`
}

type QuotesResponseDTO struct {
	Failed   map[int64][]apperror.FieldError `json:"failed"`
	Checkout CheckoutResponseDTO             `json:"checkout"`
}

func toDeliveryDTO(v delivery.GroupView) DeliveryDTO {
	return DeliveryDTO{
		Status:   v.Status.String(),
		Options:  v.Options,
		OptionID: v.Choice.DeliveryOptionID,
		Cost:     v.Cost,
		Error:    apperror.Display(v.Err),
	}
}

func toCheckoutDTO(v checkout.View) CheckoutResponseDTO {
	resp := CheckoutResponseDTO{
		Status:     v.Status.String(),
		SnapshotID: v.SnapshotID,
		Address:    v.Address,
		Groups:     []CheckoutGroupDTO{},
		Totals:     v.Totals,
		Ready:      v.Ready,
		Error:      apperror.Display(v.Err),
		Receipt:    v.Receipt,
	}
	for _, g := range v.Groups {
		resp.Groups = append(resp.Groups, CheckoutGroupDTO{
			SellerID:   g.SellerID,
			SellerName: g.SellerName,
			Entries:    g.Entries,
			Subtotal:   g.Subtotal,
			Delivery:   toDeliveryDTO(g.Delivery),
		})
	}
	return resp
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	o, err := s.BeginCheckout(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, toCheckoutDTO(o.View()))
}

// GET /api/v1/checkout
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := sessionFrom(r.Context()).Checkout()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toCheckoutDTO(o.View()))
}

// DELETE /api/v1/checkout
func (h *CheckoutHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r.Context()).AbandonCheckout()
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/checkout/delivery/{seller_id}/quote[?retry=true]
//
// A failed quote is reported inside the group, so the response is 200
// unless the checkout itself refused the request.
func (h *CheckoutHandler) RequestQuote(w http.ResponseWriter, r *http.Request) {
	o, err := sessionFrom(r.Context()).Checkout()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	sellerID, err := pathID(r, "seller_id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var view delivery.GroupView
	if r.URL.Query().Get("retry") == "true" {
		view, err = o.RetryQuote(r.Context(), sellerID)
	} else {
		view, err = o.RequestQuote(r.Context(), sellerID)
	}
	if err != nil && (view.Status != domain.QuoteStatusFailed || apperror.Classify(err) == apperror.KindAuth) {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toDeliveryDTO(view))
}

// POST /api/v1/checkout/delivery/quotes
func (h *CheckoutHandler) RequestAllQuotes(w http.ResponseWriter, r *http.Request) {
	o, err := sessionFrom(r.Context()).Checkout()
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	failed, err := o.RequestAllQuotes(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := QuotesResponseDTO{Failed: make(map[int64][]apperror.FieldError), Checkout: toCheckoutDTO(o.View())}
	for sellerID, ferr := range failed {
		resp.Failed[sellerID] = apperror.Display(ferr)
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// PUT /api/v1/checkout/delivery/{seller_id}
func (h *CheckoutHandler) ChooseDelivery(w http.ResponseWriter, r *http.Request) {
	o, err := sessionFrom(r.Context()).Checkout()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	sellerID, err := pathID(r, "seller_id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req ChooseDeliveryRequestDTO
	if err := decodeRequest(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	if _, err := o.ChooseDelivery(sellerID, req.OptionID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toCheckoutDTO(o.View()))
}

// POST /api/v1/checkout/address/refresh
func (h *CheckoutHandler) RefreshAddress(w http.ResponseWriter, r *http.Request) {
	o, err := sessionFrom(r.Context()).Checkout()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if _, err := o.RefreshAddress(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toCheckoutDTO(o.View()))
}

// POST /api/v1/checkout/order
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	o, err := sessionFrom(r.Context()).Checkout()
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if _, err := o.Submit(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, toCheckoutDTO(o.View()))
}
