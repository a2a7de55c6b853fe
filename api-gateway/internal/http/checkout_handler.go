package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/api-gateway/internal/service"
)

type CheckoutHandler struct {
	checkout *service.CheckoutService
	errs     errorMapper
	timeout  time.Duration
}

func NewCheckoutHandler(checkout *service.CheckoutService, errs errorMapper, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		errs:     errs,
		timeout:  timeout,
	}
}

type CheckoutRequestDTO struct {
	ShippingAddress string `json:"shipping_address"`
	Phone           string `json:"phone"`
	Note            string `json:"note"`
	PromotionCode   string `json:"promotion_code"`
	PaymentMethod   string `json:"payment_method"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.checkout.Checkout(ctx, getUserIDFromContext(r.Context()), service.CheckoutInput{
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
		Note:            req.Note,
		PromotionCode:   req.PromotionCode,
		PaymentMethod:   req.PaymentMethod,
	})
	if errors.Is(err, service.ErrPaymentNotTaken) && res != nil {
		// The order exists; the client can retry payment from the order page.
		respondJSON(w, http.StatusBadGateway, struct {
			ErrorResponse
			*service.CheckoutResult
		}{
			ErrorResponse:  ErrorResponse{Error: service.ErrPaymentNotTaken.Error(), Code: "payment_failed", Details: err.Error()},
			CheckoutResult: res,
		})
		return
	}
	if err != nil {
		h.errs.handle(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}
