package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/repository"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultReceiptLimit = 20
	maxReceiptLimit     = 100
)

// ReceiptReader is the receipts index kept for completed checkouts.
type ReceiptReader interface {
	GetReceipt(ctx context.Context, id string) (*domain.Receipt, error)
	ListReceipts(ctx context.Context, userID string, limit int) ([]domain.Receipt, error)
}

type OrdersHandler struct {
	responder
	receipts ReceiptReader
}

func NewOrdersHandler(receipts ReceiptReader, logger *zap.Logger) *OrdersHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrdersHandler{responder: responder{logger: logger}, receipts: receipts}
}

// GET /api/v1/orders/receipts?limit=
func (h *OrdersHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())

	limit := defaultReceiptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxReceiptLimit {
			h.respondError(w, r, invalid("limit", "limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	receipts, err := h.receipts.ListReceipts(r.Context(), s.UserID(), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if receipts == nil {
		receipts = []domain.Receipt{}
	}
	h.respondJSON(w, http.StatusOK, receipts)
}

// GET /api/v1/orders/receipts/{receipt_id}
func (h *OrdersHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	id := chi.URLParam(r, "receipt_id")

	receipt, err := h.receipts.GetReceipt(r.Context(), id)
	if errors.Is(err, repository.ErrReceiptNotFound) || (err == nil && receipt.UserID != s.UserID()) {
		h.respondFieldError(w, http.StatusNotFound, "receipt", "receipt not found")
		return
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, receipt)
}
