package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_storefront/api-gateway/internal/service"
	"github.com/fjod/go_storefront/pkg/cart"
)

type CartHandler struct {
	carts   *service.CartService
	errs    errorMapper
	timeout time.Duration
}

func NewCartHandler(carts *service.CartService, errs errorMapper, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		errs:    errs,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
	// PreviousQuantity is what the client currently displays for the line.
	PreviousQuantity *int `json:"previous_quantity,omitempty"`
	ConfirmRemove    bool `json:"confirm_remove"`
}

type CartResponse struct {
	Lines     []cart.Line     `json:"lines"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
}

type QuantityResponse struct {
	Action    cart.Action        `json:"action"`
	Change    cart.PendingChange `json:"change"`
	Displayed int                `json:"displayed"`
	Cart      *CartResponse      `json:"cart,omitempty"`
}

func newCartResponse(c *cart.Cart) *CartResponse {
	if c == nil {
		c = &cart.Cart{}
	}
	lines := c.Lines
	if lines == nil {
		lines = []cart.Line{}
	}
	return &CartResponse{
		Lines:     lines,
		ItemCount: c.ItemCount(),
		Subtotal:  c.Subtotal(),
		Discount:  c.Discount(),
		Total:     c.Total(),
	}
}

func newQuantityResponse(out *cart.Outcome) *QuantityResponse {
	res := &QuantityResponse{
		Action:    out.Action,
		Change:    out.Change,
		Displayed: out.Displayed,
	}
	if out.Cart != nil {
		res.Cart = newCartResponse(out.Cart)
	}
	return res
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c, err := h.carts.GetCart(ctx)
	if err != nil {
		h.errs.handle(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c, err := h.carts.AddItem(ctx, getUserIDFromContext(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		h.errs.handle(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, newCartResponse(c))
}

// UpdateQuantity sets a line to an absolute quantity. Zero removes the line,
// which has to be confirmed with confirm_remove.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseID(r, "product_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	out, err := h.carts.SetQuantity(ctx, service.SetQuantityInput{
		Owner:          getUserIDFromContext(r.Context()),
		ProductID:      productID,
		Quantity:       req.Quantity,
		Previous:       req.PreviousQuantity,
		ConfirmRemoval: req.ConfirmRemove,
	})
	h.respondOutcome(w, out, err)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseID(r, "product_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	out, err := h.carts.RemoveItem(ctx, getUserIDFromContext(r.Context()), productID)
	h.respondOutcome(w, out, err)
}

// respondOutcome attaches the outcome to error bodies whenever the reconciler got
// as far as a declined confirmation or a reloaded cart, so the client can reset
// the quantity input to what the server holds.
func (h *CartHandler) respondOutcome(w http.ResponseWriter, out *cart.Outcome, err error) {
	if err == nil {
		respondJSON(w, http.StatusOK, newQuantityResponse(out))
		return
	}
	if out == nil || (out.Cart == nil && !errors.Is(err, service.ErrConfirmationRequired)) {
		h.errs.handle(w, err)
		return
	}
	status, body := h.errs.classify(err)
	respondJSON(w, status, struct {
		ErrorResponse
		Outcome *QuantityResponse `json:"outcome"`
	}{
		ErrorResponse: body,
		Outcome:       newQuantityResponse(out),
	})
}
