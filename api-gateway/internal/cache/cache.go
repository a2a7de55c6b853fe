package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_storefront/pkg/shopapi"
)

// CatalogCache holds backend catalog reads that change rarely.
type CatalogCache interface {
	GetFilters(ctx context.Context) (*shopapi.FilterMetadata, error)
	SetFilters(ctx context.Context, m *shopapi.FilterMetadata) error
	GetProduct(ctx context.Context, id int64) (*shopapi.Product, error)
	SetProduct(ctx context.Context, p *shopapi.Product) error
	DeleteProduct(ctx context.Context, id int64) error
}

var ErrCacheMiss = errors.New("cache miss")
