package shopapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// SearchProducts runs a filtered listing query; q is usually filter.State.Query().
func (c *Client) SearchProducts(ctx context.Context, q url.Values) (*ProductPage, error) {
	var items []Product
	total, err := c.do(ctx, http.MethodGet, "/api/products/search", q, nil, &items)
	if err != nil {
		return nil, err
	}
	if total < 0 {
		total = len(items)
	}
	return &ProductPage{Items: items, Total: total}, nil
}

func (c *Client) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p Product
	if _, err := c.do(ctx, http.MethodGet, "/api/products/"+strconv.FormatInt(id, 10), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FilterMetadata returns the catalog-wide price range and category tree.
func (c *Client) FilterMetadata(ctx context.Context) (*FilterMetadata, error) {
	var m FilterMetadata
	if _, err := c.do(ctx, http.MethodGet, "/api/products/filters", nil, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
