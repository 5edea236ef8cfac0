package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront-service/internal/apperror"
	"github.com/fjod/go_cart/storefront-service/internal/cart"
	"github.com/fjod/go_cart/storefront-service/internal/checkout"
	"github.com/fjod/go_cart/storefront-service/internal/delivery"
	"github.com/fjod/go_cart/storefront-service/internal/session"
	"go.uber.org/zap"
)

const (
	RedirectLogin = "login"
	RedirectCart  = "cart"
)

type ErrorResponse struct {
	Error    []apperror.FieldError `json:"error"`
	Redirect string                `json:"redirect,omitempty"`
}

type responder struct {
	logger *zap.Logger
}

func (rs responder) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		rs.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (rs responder) respondFieldError(w http.ResponseWriter, status int, field, detail string) {
	rs.respondJSON(w, status, ErrorResponse{Error: []apperror.FieldError{{Field: field, Detail: detail}}})
}

// respondError renders err by kind. Server details never reach the buyer.
func (rs responder) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var re *requestError
	if errors.As(err, &re) {
		rs.respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: re.fields})
		return
	}

	if discarded(err) {
		rs.respondFieldError(w, http.StatusConflict, "checkout", "checkout has changed, please reload")
		return
	}

	kind := apperror.Classify(err)
	resp := ErrorResponse{Error: apperror.Display(err)}

	var status int
	switch kind {
	case apperror.KindAuth:
		status = http.StatusUnauthorized
		resp.Redirect = RedirectLogin
	case apperror.KindPrecondition:
		status = preconditionStatus(err)
		if errors.Is(err, checkout.ErrEmptySelection) || errors.Is(err, checkout.ErrEmptyCart) {
			resp.Redirect = RedirectCart
		}
	case apperror.KindValidation:
		status = http.StatusBadRequest
		var apiErr *apperror.APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			status = apiErr.Status
		}
	default:
		status = http.StatusBadGateway
		var apiErr *apperror.APIError
		if !errors.As(err, &apiErr) {
			status = http.StatusInternalServerError
		}
		rs.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err))
	}
	rs.respondJSON(w, status, resp)
}

// discarded reports results dropped because the checkout moved on.
func discarded(err error) bool {
	return checkout.IsAbandoned(err) || errors.Is(err, delivery.ErrStale) || errors.Is(err, delivery.ErrClosed)
}

func preconditionStatus(err error) int {
	switch {
	case errors.Is(err, cart.ErrEntryNotFound), errors.Is(err, session.ErrNoCheckout):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrQuantityBelowOne), errors.Is(err, cart.ErrZeroDelta):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}
