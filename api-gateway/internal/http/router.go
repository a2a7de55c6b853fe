package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fjod/go_storefront/api-gateway/internal/service"
	"github.com/fjod/go_storefront/pkg/shopapi"
)

// Backend is everything the gateway reads straight from the shop API.
type Backend interface {
	OrdersBackend
	CommunityBackend
}

type RouterConfig struct {
	Catalog   *service.CatalogService
	Carts     *service.CartService
	Checkout  *service.CheckoutService
	Analytics *service.AnalyticsService
	Backend   Backend
	Limiter   *RateLimiter
	Logger    *slog.Logger

	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	// LoginURL is returned to clients whose session the backend rejected.
	LoginURL string
}

var _ Backend = (*shopapi.Client)(nil)

func NewRouter(cfg RouterConfig) http.Handler {
	errs := errorMapper{loginURL: cfg.LoginURL}
	products := NewProductHandler(cfg.Catalog, errs, cfg.RequestTimeout)
	carts := NewCartHandler(cfg.Carts, errs, cfg.RequestTimeout)
	checkout := NewCheckoutHandler(cfg.Checkout, errs, cfg.RequestTimeout)
	orders := NewOrdersHandler(cfg.Backend, errs, cfg.RequestTimeout)
	community := NewCommunityHandler(cfg.Backend, errs, cfg.RequestTimeout)
	admin := NewAdminHandler(cfg.Analytics, errs, cfg.RequestTimeout)

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(log))
	r.Use(middleware.Compress(5))
	r.Use(AuthMiddleware)
	if cfg.Limiter != nil {
		r.Use(cfg.Limiter.Middleware)
	}
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", products.List)
		r.Get("/products/filters", products.Filters)
		r.Get("/products/{id}", products.Get)
		r.Get("/products/{id}/reviews", products.Reviews)
		r.Get("/forum/posts", community.ListPosts)
		r.Get("/forum/posts/{id}", community.GetPost)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(cfg.LoginURL))

			r.Post("/products/{id}/reviews", products.AddReview)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", carts.GetCart)
				r.Post("/items", carts.AddItem)
				r.Put("/items/{product_id}", carts.UpdateQuantity)
				r.Delete("/items/{product_id}", carts.RemoveItem)
			})

			r.Post("/checkout", checkout.Checkout)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", orders.ListOrders)
				r.Get("/{id}", orders.GetOrder)
			})

			r.Route("/favorites", func(r chi.Router) {
				r.Get("/", community.ListFavorites)
				r.Post("/", community.AddFavorite)
				r.Delete("/{product_id}", community.RemoveFavorite)
			})

			r.Post("/forum/posts", community.CreatePost)

			r.Get("/admin/revenue", admin.Revenue)
		})
	})

	return r
}
