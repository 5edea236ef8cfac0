package http

import (
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront-service/internal/apperror"
	"github.com/fjod/go_cart/storefront-service/internal/cart"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/pricing"
	"github.com/fjod/go_cart/storefront-service/internal/reconciler"
	"github.com/fjod/go_cart/storefront-service/internal/session"
	"go.uber.org/zap"
)

type CartHandler struct {
	responder
}

func NewCartHandler(logger *zap.Logger) *CartHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartHandler{responder{logger: logger}}
}

type AddItemRequestDTO struct {
	ProductRef int64 `json:"product_ref" validate:"required,gt=0"`
	Quantity   int   `json:"quantity" validate:"required,gt=0,lte=99"`
}

type CartEntryDTO struct {
	domain.CartEntry
	Selected      bool `json:"selected"`
	PendingDelete bool `json:"pending_delete"`
}

type CartGroupDTO struct {
	SellerID   int64          `json:"seller_id"`
	SellerName string         `json:"seller_name"`
	Entries    []CartEntryDTO `json:"entries"`
	Subtotal   domain.Money   `json:"subtotal"`
}

type CartResponseDTO struct {
	Groups           []CartGroupDTO `json:"groups"`
	SelectedIDs      []int64        `json:"selected_ids"`
	SelectedSubtotal domain.Money   `json:"selected_subtotal"`
	Badge            int            `json:"badge"`
}

type EntryResponseDTO struct {
	Entry domain.CartEntry `json:"entry"`
	Cart  CartResponseDTO  `json:"cart"`
}

type ToggleResponseDTO struct {
	CartItemID int64           `json:"cart_item_id"`
	Selected   bool            `json:"selected"`
	Cart       CartResponseDTO `json:"cart"`
}

type ConfirmationResponseDTO struct {
	ErrorResponse
	Entry domain.CartEntry `json:"entry"`
}

func (h *CartHandler) cartView(r *http.Request, s *session.Session) CartResponseDTO {
	entries := s.Cart().Entries()
	sel := s.Selection()
	pending := make(map[int64]bool)
	for _, id := range s.Reconciler().PendingDeletes() {
		pending[id] = true
	}

	resp := CartResponseDTO{
		Groups:           []CartGroupDTO{},
		SelectedIDs:      sel.All(),
		SelectedSubtotal: pricing.SelectedSubtotal(entries, sel.Contains),
	}
	for _, g := range pricing.Group(entries) {
		group := CartGroupDTO{SellerID: g.SellerID, SellerName: g.SellerName, Subtotal: pricing.Subtotal(g)}
		for _, e := range g.Entries {
			group.Entries = append(group.Entries, CartEntryDTO{
				CartEntry:     e,
				Selected:      sel.Contains(e.CartItemID),
				PendingDelete: pending[e.CartItemID],
			})
		}
		resp.Groups = append(resp.Groups, group)
	}

	badge, err := s.Cart().BadgeCount(r.Context())
	if err != nil {
		h.logger.Warn("badge count unavailable", zap.String("user_id", s.UserID()), zap.Error(err))
		badge = s.Cart().Count()
	}
	resp.Badge = badge
	return resp
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	if _, err := s.Reconciler().Refresh(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.cartView(r, s))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())

	var req AddItemRequestDTO
	if err := decodeRequest(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := s.Reconciler().Add(r.Context(), req.ProductRef, req.Quantity); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, h.cartView(r, s))
}

// POST /api/v1/cart/items/{id}/increment
func (h *CartHandler) Increment(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	entry, err := s.Reconciler().Increment(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, EntryResponseDTO{Entry: entry, Cart: h.cartView(r, s)})
}

// POST /api/v1/cart/items/{id}/decrement
//
// At quantity one nothing is sent; the buyer gets 409 with the entry and must
// confirm through DELETE.
func (h *CartHandler) Decrement(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	entry, err := s.Reconciler().Decrement(r.Context(), id)
	if errors.Is(err, reconciler.ErrConfirmationRequired) {
		h.respondJSON(w, http.StatusConflict, ConfirmationResponseDTO{
			ErrorResponse: ErrorResponse{Error: []apperror.FieldError{{
				Field:  reconciler.ErrConfirmationRequired.Field,
				Detail: reconciler.ErrConfirmationRequired.Detail,
			}}},
			Entry: entry,
		})
		return
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, EntryResponseDTO{Entry: entry, Cart: h.cartView(r, s)})
}

// DELETE /api/v1/cart/items/{id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := s.Reconciler().ConfirmDelete(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.cartView(r, s))
}

// DELETE /api/v1/cart/items/{id}/pending
func (h *CartHandler) CancelRemove(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	s.Reconciler().CancelDelete(id)
	h.respondJSON(w, http.StatusOK, h.cartView(r, s))
}

// POST /api/v1/cart/items/{id}/toggle
func (h *CartHandler) ToggleSelection(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !s.Cart().Has(id) {
		h.respondError(w, r, cart.ErrEntryNotFound)
		return
	}

	selected := s.Selection().Toggle(id)
	h.respondJSON(w, http.StatusOK, ToggleResponseDTO{CartItemID: id, Selected: selected, Cart: h.cartView(r, s)})
}

// DELETE /api/v1/cart/selection
func (h *CartHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	s.Selection().Reset()
	h.respondJSON(w, http.StatusOK, h.cartView(r, s))
}
