package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_storefront/pkg/cart"
)

var (
	ErrConfirmationRequired = errors.New("removing the item needs confirmation")
	ErrInvalidQuantity      = errors.New("invalid quantity")
)

type confirmKey struct{}

// withRemoveConfirmed records whether the caller already agreed to drop the line.
func withRemoveConfirmed(ctx context.Context, ok bool) context.Context {
	return context.WithValue(ctx, confirmKey{}, ok)
}

var confirmFromRequest = cart.ConfirmFunc(func(ctx context.Context, _ int64, _ int) (bool, error) {
	ok, _ := ctx.Value(confirmKey{}).(bool)
	return ok, nil
})

// CartService applies cart changes for HTTP callers. Identity travels in ctx
// (see shopapi.WithToken); owner only keys the in-flight guard.
type CartService struct {
	backend     cart.Store
	reconciler  *cart.Reconciler
	maxQuantity int
}

func NewCartService(backend cart.Store, notifier cart.Notifier, maxQuantity int) *CartService {
	if maxQuantity <= 0 {
		maxQuantity = cart.DefaultMaxLineQuantity
	}
	if notifier == nil {
		notifier = cart.NopNotifier{}
	}
	return &CartService{
		backend:     backend,
		reconciler:  cart.NewReconciler(backend, confirmFromRequest, cart.WithNotifier(notifier), cart.WithMaxQuantity(maxQuantity)),
		maxQuantity: maxQuantity,
	}
}

func (s *CartService) MaxQuantity() int { return s.maxQuantity }

func (s *CartService) GetCart(ctx context.Context) (*cart.Cart, error) {
	return s.backend.GetCart(ctx)
}

// AddItem adds quantity more of a product and returns the reloaded cart.
func (s *CartService) AddItem(ctx context.Context, owner string, productID int64, quantity int) (*cart.Cart, error) {
	if quantity <= 0 || quantity > s.maxQuantity {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, s.maxQuantity)
	}
	if s.reconciler.Busy(owner, productID) {
		return nil, cart.ErrLineBusy
	}
	if err := s.backend.AddToCart(ctx, productID, quantity); err != nil {
		return nil, err
	}
	return s.backend.GetCart(ctx)
}

type SetQuantityInput struct {
	Owner     string
	ProductID int64
	Quantity  int
	// Previous is the quantity the caller displays. When nil the current server
	// quantity is used.
	Previous       *int
	ConfirmRemoval bool
}

// SetQuantity moves a line to an absolute quantity. A removal that was not
// confirmed returns the outcome together with ErrConfirmationRequired.
func (s *CartService) SetQuantity(ctx context.Context, in SetQuantityInput) (*cart.Outcome, error) {
	if in.Quantity < 0 {
		return nil, fmt.Errorf("%w: must not be negative", ErrInvalidQuantity)
	}

	var view *cart.View
	if in.Previous != nil {
		if *in.Previous < 0 {
			return nil, fmt.Errorf("%w: previous quantity must not be negative", ErrInvalidQuantity)
		}
		view = cart.NewView(&cart.Cart{Lines: []cart.Line{{ProductID: in.ProductID, Quantity: *in.Previous}}})
	} else {
		c, err := s.backend.GetCart(ctx)
		if err != nil {
			return nil, fmt.Errorf("load cart: %w", err)
		}
		view = cart.NewView(c)
	}

	ctx = withRemoveConfirmed(ctx, in.ConfirmRemoval)
	out, err := s.reconciler.SetQuantity(ctx, view, cart.Request{Owner: in.Owner, ProductID: in.ProductID, Requested: in.Quantity})
	if err != nil {
		return out, err
	}
	if out.Action == cart.ActionDeclined {
		return out, ErrConfirmationRequired
	}
	return out, nil
}

// RemoveItem drops a line; the explicit delete is its own confirmation.
func (s *CartService) RemoveItem(ctx context.Context, owner string, productID int64) (*cart.Outcome, error) {
	return s.SetQuantity(ctx, SetQuantityInput{Owner: owner, ProductID: productID, ConfirmRemoval: true})
}
