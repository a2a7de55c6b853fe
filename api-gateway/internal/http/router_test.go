package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_storefront/api-gateway/internal/cache"
	"github.com/fjod/go_storefront/api-gateway/internal/service"
	"github.com/fjod/go_storefront/pkg/cart"
	"github.com/fjod/go_storefront/pkg/logger"
	"github.com/fjod/go_storefront/pkg/shopapi"
	"github.com/fjod/go_storefront/pkg/shopapi/fakebackend"
)

const loginURL = "https://shop.example/login"

type gateway struct {
	handler http.Handler
	backend *fakebackend.Server
}

func setupGateway(t *testing.T) *gateway {
	t.Helper()

	store := fakebackend.NewStore(nil)
	t.Cleanup(func() { store.Close() })
	fakebackend.Seed(store)
	backend := fakebackend.New(store)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client, err := shopapi.New(shopapi.Config{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
		Logger:  logger.Discard(),
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	handler := NewRouter(RouterConfig{
		Catalog:        service.NewCatalogService(client, cache.NewRedisCache(rdb, time.Minute)),
		Carts:          service.NewCartService(client, nil, cart.DefaultMaxLineQuantity),
		Checkout:       service.NewCheckoutService(client, nil),
		Analytics:      service.NewAnalyticsService(client),
		Backend:        client,
		Logger:         logger.Discard(),
		RequestTimeout: 5 * time.Second,
		LoginURL:       loginURL,
	})
	return &gateway{handler: handler, backend: backend}
}

func (g *gateway) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	g.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	g := setupGateway(t)
	rec := g.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestProducts_ListAppliesFilter(t *testing.T) {
	g := setupGateway(t)

	rec := g.do(t, http.MethodGet, "/api/v1/products?keyword=cement&sort=price-asc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[ProductsResponse](t, rec)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Products, 2)
	assert.Equal(t, int64(8), res.Products[0].ID)
	assert.Contains(t, res.Query, "keyword=cement")
	assert.Equal(t, 1, res.Page)
}

func TestProducts_InvalidFilter(t *testing.T) {
	g := setupGateway(t)

	rec := g.do(t, http.MethodGet, "/api/v1/products?minPrice=50&maxPrice=10", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_filter", decode[ErrorResponse](t, rec).Code)

	rec = g.do(t, http.MethodGet, "/api/v1/products?sort=random", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProducts_Filters(t *testing.T) {
	g := setupGateway(t)

	rec := g.do(t, http.MethodGet, "/api/v1/products/filters", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[FiltersResponse](t, rec)
	assert.Len(t, res.Categories, 5)
	assert.Len(t, res.SortOrders, 6)
	assert.True(t, res.Defaults.PriceMin.Equal(decimal.RequireFromString("0.45")))
	assert.True(t, res.Defaults.PriceMax.Equal(decimal.RequireFromString("74.90")))
	assert.Equal(t, "newest", string(res.Defaults.Sort))
}

func TestProducts_GetAndReviews(t *testing.T) {
	g := setupGateway(t)

	rec := g.do(t, http.MethodGet, "/api/v1/products/5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Claw hammer", decode[shopapi.Product](t, rec).Name)

	assert.Equal(t, http.StatusNotFound, g.do(t, http.MethodGet, "/api/v1/products/77", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, g.do(t, http.MethodGet, "/api/v1/products/abc", "", nil).Code)

	assert.Equal(t, http.StatusUnauthorized,
		g.do(t, http.MethodPost, "/api/v1/products/5/reviews", "", shopapi.ReviewInput{Rating: 4}).Code)

	rec = g.do(t, http.MethodPost, "/api/v1/products/5/reviews", "bob", shopapi.ReviewInput{Rating: 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.do(t, http.MethodPost, "/api/v1/products/5/reviews", "bob", shopapi.ReviewInput{Rating: 4, Comment: "solid"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = g.do(t, http.MethodGet, "/api/v1/products/5/reviews", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reviews := decode[map[string][]shopapi.Review](t, rec)["reviews"]
	require.Len(t, reviews, 1)
	assert.Equal(t, "solid", reviews[0].Comment)
}

func TestCart_RequiresLogin(t *testing.T) {
	g := setupGateway(t)

	rec := g.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, loginURL, decode[ErrorResponse](t, rec).LoginURL)
}

func TestCart_QuantityFlow(t *testing.T) {
	g := setupGateway(t)
	const user = "alice"

	rec := g.do(t, http.MethodPost, "/api/v1/cart/items", user, AddItemRequestDTO{ProductID: 1, Quantity: 3})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 3, decode[CartResponse](t, rec).ItemCount)

	tests := []struct {
		name      string
		body      UpdateQuantityRequestDTO
		status    int
		action    cart.Action
		displayed int
	}{
		{"increase", UpdateQuantityRequestDTO{Quantity: 5}, http.StatusOK, cart.ActionIncrement, 5},
		{"decrease", UpdateQuantityRequestDTO{Quantity: 2}, http.StatusOK, cart.ActionReplace, 2},
		{"unchanged", UpdateQuantityRequestDTO{Quantity: 2}, http.StatusOK, cart.ActionNone, 2},
		{"remove unconfirmed", UpdateQuantityRequestDTO{Quantity: 0}, http.StatusConflict, cart.ActionDeclined, 2},
		{"remove confirmed", UpdateQuantityRequestDTO{Quantity: 0, ConfirmRemove: true}, http.StatusOK, cart.ActionRemove, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := g.do(t, http.MethodPut, "/api/v1/cart/items/1", user, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			var res struct {
				QuantityResponse
				Code    string            `json:"code"`
				Outcome *QuantityResponse `json:"outcome"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
			got := &res.QuantityResponse
			if res.Outcome != nil {
				assert.Equal(t, "confirmation_required", res.Code)
				got = res.Outcome
			}
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, tt.displayed, got.Displayed)
		})
	}

	assert.Equal(t, 0, g.backend.Store().CartQuantity(user, 1))
}

func TestCart_DecreaseReloadsTotals(t *testing.T) {
	g := setupGateway(t)
	const user = "alice"

	require.Equal(t, http.StatusCreated,
		g.do(t, http.MethodPost, "/api/v1/cart/items", user, AddItemRequestDTO{ProductID: 2, Quantity: 4}).Code)

	prev := 4
	rec := g.do(t, http.MethodPut, "/api/v1/cart/items/2", user, UpdateQuantityRequestDTO{Quantity: 1, PreviousQuantity: &prev})
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[QuantityResponse](t, rec)
	require.NotNil(t, res.Cart)
	assert.True(t, res.Cart.Subtotal.Equal(decimal.RequireFromString("14.00")))
	assert.True(t, res.Cart.Total.Equal(decimal.RequireFromString("12.60")))
	assert.True(t, res.Cart.Discount.Equal(decimal.RequireFromString("1.40")))

	assert.Equal(t, []string{"DELETE /api/cart/2", "POST /api/cart", "GET /api/cart"},
		g.backend.CallLog("/api/cart")[2:])
}

func TestCart_FailedDecreaseReturnsRestoredOutcome(t *testing.T) {
	g := setupGateway(t)
	const user = "alice"

	require.Equal(t, http.StatusCreated,
		g.do(t, http.MethodPost, "/api/v1/cart/items", user, AddItemRequestDTO{ProductID: 1, Quantity: 5}).Code)
	g.backend.FailNext(http.MethodPost, "/api/cart", http.StatusUnprocessableEntity, "promo locked")

	prev := 5
	rec := g.do(t, http.MethodPut, "/api/v1/cart/items/1", user, UpdateQuantityRequestDTO{Quantity: 2, PreviousQuantity: &prev})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	res := decode[struct {
		ErrorResponse
		Outcome *QuantityResponse `json:"outcome"`
	}](t, rec)
	assert.Equal(t, "rejected", res.Code)
	assert.Equal(t, "promo locked", res.Error)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, cart.ActionReplace, res.Outcome.Action)
	assert.Equal(t, 5, res.Outcome.Displayed)
	require.NotNil(t, res.Outcome.Cart)
	assert.Equal(t, 5, res.Outcome.Cart.ItemCount)
	assert.Equal(t, 5, g.backend.Store().CartQuantity(user, 1))
}

func TestCart_Errors(t *testing.T) {
	g := setupGateway(t)
	const user = "alice"

	rec := g.do(t, http.MethodPost, "/api/v1/cart/items", user, AddItemRequestDTO{ProductID: 1, Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_quantity", decode[ErrorResponse](t, rec).Code)

	rec = g.do(t, http.MethodPost, "/api/v1/cart/items", user, AddItemRequestDTO{ProductID: 4, Quantity: 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	res := decode[ErrorResponse](t, rec)
	assert.Equal(t, "rejected", res.Code)
	assert.Equal(t, "insufficient stock", res.Error)

	rec = g.do(t, http.MethodPut, "/api/v1/cart/items/1", user, UpdateQuantityRequestDTO{Quantity: 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_quantity", decode[ErrorResponse](t, rec).Code)

	rec = g.do(t, http.MethodPut, "/api/v1/cart/items/0", user, UpdateQuantityRequestDTO{Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.do(t, http.MethodDelete, "/api/v1/cart/items/3", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cart.ActionNone, decode[QuantityResponse](t, rec).Action)
}

func TestCheckout(t *testing.T) {
	g := setupGateway(t)
	const user = "carol"

	rec := g.do(t, http.MethodPost, "/api/v1/checkout", user, CheckoutRequestDTO{ShippingAddress: "1 Main St", PaymentMethod: "card"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_cart", decode[ErrorResponse](t, rec).Code)

	require.Equal(t, http.StatusCreated,
		g.do(t, http.MethodPost, "/api/v1/cart/items", user, AddItemRequestDTO{ProductID: 1, Quantity: 10}).Code)

	rec = g.do(t, http.MethodPost, "/api/v1/checkout", user, CheckoutRequestDTO{PaymentMethod: "card"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", decode[ErrorResponse](t, rec).Code)

	rec = g.do(t, http.MethodPost, "/api/v1/checkout", user, CheckoutRequestDTO{
		ShippingAddress: "1 Main St",
		PaymentMethod:   "card",
		PromotionCode:   "WELCOME10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[service.CheckoutResult](t, rec)
	require.NotNil(t, res.Order)
	require.NotNil(t, res.Payment)
	assert.True(t, res.Order.Total.Equal(decimal.RequireFromString("85.5")))
	assert.Equal(t, "captured", res.Payment.Status)

	rec = g.do(t, http.MethodGet, "/api/v1/orders", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	orders := decode[ListOrdersResponseDTO](t, rec).Orders
	require.Len(t, orders, 1)
	assert.Equal(t, res.Order.ID, orders[0].ID)

	assert.Equal(t, http.StatusNotFound, g.do(t, http.MethodGet, "/api/v1/orders/999", user, nil).Code)
	assert.Equal(t, http.StatusBadRequest, g.do(t, http.MethodGet, "/api/v1/orders/x", user, nil).Code)
}

func TestCheckout_PaymentFailureKeepsOrder(t *testing.T) {
	g := setupGateway(t)
	const user = "dave"

	require.Equal(t, http.StatusCreated,
		g.do(t, http.MethodPost, "/api/v1/cart/items", user, AddItemRequestDTO{ProductID: 5, Quantity: 1}).Code)
	g.backend.FailNext(http.MethodPost, "/api/payments", http.StatusUnprocessableEntity, "card declined")

	rec := g.do(t, http.MethodPost, "/api/v1/checkout", user, CheckoutRequestDTO{ShippingAddress: "2 Side St", PaymentMethod: "card"})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var res struct {
		ErrorResponse
		service.CheckoutResult
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "payment_failed", res.Code)
	assert.Contains(t, res.Details, "card declined")
	require.NotNil(t, res.Order)
	assert.Equal(t, fakebackend.StatusPending, res.Order.Status)
	assert.Nil(t, res.Payment)
}

func TestCommunity(t *testing.T) {
	g := setupGateway(t)
	const user = "erin"

	assert.Equal(t, http.StatusNoContent,
		g.do(t, http.MethodPost, "/api/v1/favorites", user, AddItemRequestDTO{ProductID: 6}).Code)
	rec := g.do(t, http.MethodGet, "/api/v1/favorites", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	favs := decode[map[string][]shopapi.Product](t, rec)["products"]
	require.Len(t, favs, 1)
	assert.Equal(t, int64(6), favs[0].ID)
	assert.Equal(t, http.StatusNoContent, g.do(t, http.MethodDelete, "/api/v1/favorites/6", user, nil).Code)

	assert.Equal(t, http.StatusBadRequest,
		g.do(t, http.MethodPost, "/api/v1/forum/posts", user, shopapi.ForumPostInput{Title: " "}).Code)
	rec = g.do(t, http.MethodPost, "/api/v1/forum/posts", user, shopapi.ForumPostInput{Title: "Mortar mix", Content: "3:1?"})
	require.Equal(t, http.StatusCreated, rec.Code)
	post := decode[shopapi.ForumPost](t, rec)

	rec = g.do(t, http.MethodGet, "/api/v1/forum/posts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[PostsResponse](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.Page)

	rec = g.do(t, http.MethodGet, "/api/v1/forum/posts/"+strconv.FormatInt(post.ID, 10), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mortar mix", decode[shopapi.ForumPost](t, rec).Title)

	assert.Equal(t, http.StatusBadRequest, g.do(t, http.MethodGet, "/api/v1/forum/posts?page=0", "", nil).Code)
}

func TestAdminRevenue(t *testing.T) {
	g := setupGateway(t)

	rec := g.do(t, http.MethodGet, "/api/v1/admin/revenue", "frank", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "permission_denied", decode[ErrorResponse](t, rec).Code)

	rec = g.do(t, http.MethodGet, "/api/v1/admin/revenue?from=last-week", fakebackend.DefaultAdminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.do(t, http.MethodGet, "/api/v1/admin/revenue?from=2025-02-01&to=2025-01-01", fakebackend.DefaultAdminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.do(t, http.MethodGet, "/api/v1/admin/revenue?groupBy=month", fakebackend.DefaultAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[service.RevenueReport](t, rec)
	assert.Empty(t, report.Points)
	assert.Equal(t, 0, report.Summary.Orders)
}
