package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_storefront/api-gateway/internal/cache"
	"github.com/fjod/go_storefront/pkg/filter"
	"github.com/fjod/go_storefront/pkg/logger"
	"github.com/fjod/go_storefront/pkg/shopapi"
)

const MaxPageSize = 100

// sharedFetchTimeout bounds a collapsed cache-or-backend lookup, which outlives
// the request that started it.
const sharedFetchTimeout = 10 * time.Second

type CatalogBackend interface {
	SearchProducts(ctx context.Context, q url.Values) (*shopapi.ProductPage, error)
	GetProduct(ctx context.Context, id int64) (*shopapi.Product, error)
	FilterMetadata(ctx context.Context) (*shopapi.FilterMetadata, error)
	ListReviews(ctx context.Context, productID int64) ([]shopapi.Review, error)
	CreateReview(ctx context.Context, productID int64, in shopapi.ReviewInput) (*shopapi.Review, error)
}

type CatalogService struct {
	backend CatalogBackend
	cache   cache.CatalogCache
	sfg     singleflight.Group // Prevents cache stampede
}

func NewCatalogService(backend CatalogBackend, cache cache.CatalogCache) *CatalogService {
	return &CatalogService{
		backend: backend,
		cache:   cache,
	}
}

// Search validates st and runs it against the backend. Page size is capped.
func (s *CatalogService) Search(ctx context.Context, st filter.State) (*shopapi.ProductPage, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	st.PageSize = min(st.PageSize, MaxPageSize)
	return s.backend.SearchProducts(ctx, st.Query())
}

func (s *CatalogService) Filters(ctx context.Context) (*shopapi.FilterMetadata, error) {
	v, err := s.shared(ctx, "filters", func(ctx context.Context) (interface{}, error) {
		m, err := s.cache.GetFilters(ctx)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.FromContext(ctx).Warn("cache get error", slog.Any("error", err))
		}

		m, err = s.backend.FilterMetadata(ctx)
		if err != nil {
			return nil, err
		}

		go func() {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.SetFilters(setCtx, m); err != nil {
				slog.Warn("cache set error", slog.Any("error", err))
			}
		}()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*shopapi.FilterMetadata), nil
}

// shared collapses concurrent lookups for key. fn runs detached from any single
// caller, so one cancelled request does not fail the others waiting on it.
func (s *CatalogService) shared(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ch := s.sfg.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return fn(fetchCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Defaults are the reset values a "clear filters" action restores.
func (s *CatalogService) Defaults(ctx context.Context) (filter.Defaults, error) {
	m, err := s.Filters(ctx)
	if err != nil {
		return filter.Defaults{}, err
	}
	return filter.Defaults{PriceMin: m.MinPrice, PriceMax: m.MaxPrice, Sort: filter.DefaultSort}, nil
}

func (s *CatalogService) Product(ctx context.Context, id int64) (*shopapi.Product, error) {
	v, err := s.shared(ctx, "product:"+strconv.FormatInt(id, 10), func(ctx context.Context) (interface{}, error) {
		p, err := s.cache.GetProduct(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.FromContext(ctx).Warn("cache get error", slog.Any("error", err))
		}

		p, err = s.backend.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}

		go func() {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.SetProduct(setCtx, p); err != nil {
				slog.Warn("cache set error", slog.Any("error", err))
			}
		}()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*shopapi.Product), nil
}

func (s *CatalogService) Reviews(ctx context.Context, productID int64) ([]shopapi.Review, error) {
	return s.backend.ListReviews(ctx, productID)
}

var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// AddReview posts a review and drops the cached product, whose rating just changed.
func (s *CatalogService) AddReview(ctx context.Context, productID int64, in shopapi.ReviewInput) (*shopapi.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, ErrInvalidRating
	}
	r, err := s.backend.CreateReview(ctx, productID, in)
	if err != nil {
		return nil, err
	}
	if err := s.cache.DeleteProduct(ctx, productID); err != nil {
		logger.FromContext(ctx).Warn("cache invalidate error", slog.Any("error", err))
	}
	return r, nil
}
