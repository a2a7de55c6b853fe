package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/pkg/shopapi"
)

type OrdersBackend interface {
	ListOrders(ctx context.Context) ([]shopapi.Order, error)
	GetOrder(ctx context.Context, id int64) (*shopapi.Order, error)
}

type OrdersHandler struct {
	backend OrdersBackend
	errs    errorMapper
	timeout time.Duration
}

func NewOrdersHandler(backend OrdersBackend, errs errorMapper, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		backend: backend,
		errs:    errs,
		timeout: timeout,
	}
}

type ListOrdersResponseDTO struct {
	Orders []shopapi.Order `json:"orders"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.backend.ListOrders(ctx)
	if err != nil {
		h.errs.handle(w, err)
		return
	}
	if orders == nil {
		orders = []shopapi.Order{}
	}
	respondJSON(w, http.StatusOK, ListOrdersResponseDTO{Orders: orders})
}

// GET /api/v1/orders/{id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a positive integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	o, err := h.backend.GetOrder(ctx, id)
	if err != nil {
		h.errs.handle(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}
