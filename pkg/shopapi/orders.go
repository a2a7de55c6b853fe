package shopapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	var orders []Order
	if _, err := c.do(ctx, http.MethodGet, "/api/orders", nil, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) GetOrder(ctx context.Context, id int64) (*Order, error) {
	var o Order
	if _, err := c.do(ctx, http.MethodGet, "/api/orders/"+strconv.FormatInt(id, 10), nil, nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOrder checks out the caller's current cart.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	var o Order
	if _, err := c.do(ctx, http.MethodPost, "/api/orders", nil, req, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	var p Payment
	if _, err := c.do(ctx, http.MethodPost, "/api/payments", nil, req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ValidatePromotion(ctx context.Context, code string, subtotal decimal.Decimal) (*Promotion, error) {
	q := url.Values{"code": {code}, "subtotal": {subtotal.String()}}
	var p Promotion
	if _, err := c.do(ctx, http.MethodGet, "/api/promotions/validate", q, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
