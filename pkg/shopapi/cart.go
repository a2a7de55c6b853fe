package shopapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/fjod/go_storefront/pkg/cart"
)

var _ cart.Store = (*Client)(nil)

func (c *Client) GetCart(ctx context.Context) (*cart.Cart, error) {
	var data CartData
	if _, err := c.do(ctx, http.MethodGet, "/api/cart", nil, nil, &data); err != nil {
		return nil, err
	}
	return data.toCart(), nil
}

// AddToCart increments a line by quantity, creating it if needed.
func (c *Client) AddToCart(ctx context.Context, productID int64, quantity int) error {
	_, err := c.do(ctx, http.MethodPost, "/api/cart", nil, AddToCartRequest{ProductID: productID, Quantity: quantity}, nil)
	return err
}

// RemoveFromCart drops a line whatever its quantity.
func (c *Client) RemoveFromCart(ctx context.Context, productID int64) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/cart/"+strconv.FormatInt(productID, 10), nil, nil, nil)
	return err
}

func (d CartData) toCart() *cart.Cart {
	c := &cart.Cart{Lines: make([]cart.Line, 0, len(d.Items))}
	for _, it := range d.Items {
		if it.Quantity <= 0 {
			continue
		}
		c.Lines = append(c.Lines, cart.Line{
			ProductID:           it.ProductID,
			Name:                it.ProductName,
			Quantity:            it.Quantity,
			UnitPrice:           it.UnitPrice,
			DiscountedUnitPrice: it.DiscountedUnitPrice,
		})
	}
	return c
}
