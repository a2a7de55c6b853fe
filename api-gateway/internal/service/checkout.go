package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_storefront/pkg/cart"
	"github.com/fjod/go_storefront/pkg/logger"
	"github.com/fjod/go_storefront/pkg/shopapi"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrMissingAddress  = errors.New("shipping address is required")
	ErrMissingMethod   = errors.New("payment method is required")
	ErrPaymentNotTaken = errors.New("order was created but payment failed")
)

type CheckoutBackend interface {
	GetCart(ctx context.Context) (*cart.Cart, error)
	ValidatePromotion(ctx context.Context, code string, subtotal decimal.Decimal) (*shopapi.Promotion, error)
	CreateOrder(ctx context.Context, req shopapi.CreateOrderRequest) (*shopapi.Order, error)
	CreatePayment(ctx context.Context, req shopapi.CreatePaymentRequest) (*shopapi.Payment, error)
}

type OrderEvents interface {
	OrderPlaced(ctx context.Context, owner string, o shopapi.Order, p shopapi.Payment)
}

type CheckoutService struct {
	backend CheckoutBackend
	events  OrderEvents
}

func NewCheckoutService(backend CheckoutBackend, events OrderEvents) *CheckoutService {
	return &CheckoutService{backend: backend, events: events}
}

type CheckoutInput struct {
	ShippingAddress string
	Phone           string
	Note            string
	PromotionCode   string
	PaymentMethod   string
}

type CheckoutResult struct {
	Order     *shopapi.Order     `json:"order"`
	Payment   *shopapi.Payment   `json:"payment,omitempty"`
	Promotion *shopapi.Promotion `json:"promotion,omitempty"`
}

// Checkout validates the promotion (if any) against the current cart, creates the
// order and then the payment. When only the payment fails the result still carries
// the order and the error wraps ErrPaymentNotTaken.
func (s *CheckoutService) Checkout(ctx context.Context, owner string, in CheckoutInput) (*CheckoutResult, error) {
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return nil, ErrMissingAddress
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		return nil, ErrMissingMethod
	}

	c, err := s.backend.GetCart(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if c.ItemCount() == 0 {
		return nil, ErrEmptyCart
	}

	res := &CheckoutResult{}
	code := strings.TrimSpace(in.PromotionCode)
	if code != "" {
		promo, err := s.backend.ValidatePromotion(ctx, code, c.Total())
		if err != nil {
			return nil, fmt.Errorf("validate promotion %q: %w", code, err)
		}
		res.Promotion = promo
	}

	order, err := s.backend.CreateOrder(ctx, shopapi.CreateOrderRequest{
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
		Phone:           in.Phone,
		Note:            in.Note,
		PromotionCode:   code,
		PaymentMethod:   in.PaymentMethod,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	res.Order = order

	payment, err := s.backend.CreatePayment(ctx, shopapi.CreatePaymentRequest{OrderID: order.ID, Method: in.PaymentMethod})
	if err != nil {
		logger.FromContext(ctx).Error("payment failed after order creation",
			slog.Int64("order_id", order.ID), slog.Any("error", err))
		return res, fmt.Errorf("%w: order %d: %w", ErrPaymentNotTaken, order.ID, err)
	}
	res.Payment = payment

	if s.events != nil {
		s.events.OrderPlaced(ctx, owner, *order, *payment)
	}
	return res, nil
}
