package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/go_storefront/api-gateway/internal/service"
	"github.com/fjod/go_storefront/pkg/cart"
	"github.com/fjod/go_storefront/pkg/filter"
	"github.com/fjod/go_storefront/pkg/shopapi"
)

type ErrorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Details  string `json:"details,omitempty"`
	LoginURL string `json:"login_url,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// errorMapper turns service and backend errors into HTTP responses.
type errorMapper struct {
	loginURL string
}

func (m errorMapper) handle(w http.ResponseWriter, err error) {
	status, body := m.classify(err)
	respondJSON(w, status, body)
}

func (m errorMapper) classify(err error) (int, ErrorResponse) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, cart.ErrLineBusy):
		status, code = http.StatusConflict, "line_busy"
	case errors.Is(err, service.ErrConfirmationRequired):
		status, code = http.StatusConflict, "confirmation_required"
	case errors.Is(err, cart.ErrCartDiverged):
		status, code = http.StatusConflict, "cart_diverged"
	case errors.Is(err, service.ErrInvalidQuantity), errors.Is(err, cart.ErrQuantityOutOfRange):
		status, code = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, filter.ErrInvalidPriceRange), errors.Is(err, filter.ErrNegativePrice),
		errors.Is(err, filter.ErrUnknownSort), errors.Is(err, filter.ErrInvalidParam):
		status, code = http.StatusBadRequest, "invalid_filter"
	case errors.Is(err, service.ErrEmptyCart):
		status, code = http.StatusBadRequest, "empty_cart"
	case errors.Is(err, service.ErrInvalidRating), errors.Is(err, service.ErrMissingAddress),
		errors.Is(err, service.ErrMissingMethod), errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrInvalidGroupBy):
		status, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, service.ErrPaymentNotTaken):
		status, code = http.StatusBadGateway, "payment_failed"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, shopapi.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrorResponse{
			Error:    shopapi.MessageOf(err),
			Code:     "unauthenticated",
			LoginURL: m.loginURL,
		}
	case errors.Is(err, shopapi.ErrForbidden):
		status, code = http.StatusForbidden, "permission_denied"
	case errors.Is(err, shopapi.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, shopapi.ErrBusiness):
		status, code = http.StatusUnprocessableEntity, "rejected"
	case errors.Is(err, shopapi.ErrNetwork):
		status, code = http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, shopapi.ErrUnexpected):
		status, code = http.StatusBadGateway, "bad_gateway"
	default:
		log.Printf("unhandled error: %v", err)
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal_error"}
	}

	return status, ErrorResponse{
		Error:   shopapi.MessageOf(err),
		Code:    code,
		Details: detailsOf(err),
	}
}

// detailsOf is the full error chain when it adds anything to the message.
func detailsOf(err error) string {
	if full := err.Error(); full != shopapi.MessageOf(err) {
		return full
	}
	return ""
}

func parseID(r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
