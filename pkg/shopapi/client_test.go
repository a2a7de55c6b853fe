package shopapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_storefront/pkg/cart"
	"github.com/fjod/go_storefront/pkg/circuitbreaker"
	"github.com/fjod/go_storefront/pkg/filter"
	"github.com/fjod/go_storefront/pkg/logger"
	"github.com/fjod/go_storefront/pkg/shopapi"
	"github.com/fjod/go_storefront/pkg/shopapi/fakebackend"
)

const token = "user-1"

func setup(t *testing.T) (*shopapi.Client, *fakebackend.Server) {
	t.Helper()
	store := fakebackend.NewStore(nil)
	t.Cleanup(func() { store.Close() })
	fakebackend.Seed(store)

	backend := fakebackend.New(store)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client, err := shopapi.New(shopapi.Config{
		BaseURL: srv.URL,
		Token:   token,
		Timeout: 5 * time.Second,
		Logger:  logger.Discard(),
	})
	require.NoError(t, err)
	return client, backend
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := shopapi.New(shopapi.Config{})
	assert.Error(t, err)
}

func TestSearchProducts_SendsFilterQuery(t *testing.T) {
	client, backend := setup(t)

	st := filter.State{
		Keyword:     " cement ",
		PriceMax:    decimal.NewNullDecimal(decimal.NewFromInt(10)),
		Sort:        filter.SortPriceAsc,
		InStockOnly: true,
	}
	page, err := client.SearchProducts(context.Background(), st.Query())
	require.NoError(t, err)

	// The trowel matches on its description.
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(8), page.Items[0].ID)
	assert.Equal(t, int64(1), page.Items[1].ID)
	assert.Equal(t, 2, page.Total)

	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "cement", calls[0].Query.Get(filter.ParamKeyword))
	assert.Equal(t, "price-asc", calls[0].Query.Get(filter.ParamSort))
	assert.Equal(t, "10", calls[0].Query.Get(filter.ParamMaxPrice))
	assert.Empty(t, calls[0].Query.Get(filter.ParamMinPrice))
}

func TestSearchProducts_CategoryIncludesChildren(t *testing.T) {
	client, _ := setup(t)

	cat := int64(1)
	page, err := client.SearchProducts(context.Background(), filter.State{CategoryID: &cat, Sort: filter.SortNameAsc}.Query())
	require.NoError(t, err)

	var names []string
	for _, p := range page.Items {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Hollow concrete block", "Portland cement 50kg", "Red clay brick", "White cement 25kg"}, names)
}

func TestSearchProducts_InvalidQueryIsBusinessError(t *testing.T) {
	client, _ := setup(t)

	_, err := client.SearchProducts(context.Background(), url.Values{"sort": {"random"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, shopapi.ErrBusiness)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
}

func TestGetProduct_NotFound(t *testing.T) {
	client, _ := setup(t)

	_, err := client.GetProduct(context.Background(), 404)
	require.Error(t, err)
	assert.ErrorIs(t, err, shopapi.ErrNotFound)
	assert.Equal(t, shopapi.KindNotFound, shopapi.KindOf(err))
	assert.Equal(t, "product not found", shopapi.MessageOf(err))
}

func TestFilterMetadata(t *testing.T) {
	client, _ := setup(t)

	m, err := client.FilterMetadata(context.Background())
	require.NoError(t, err)
	assert.True(t, m.MinPrice.Equal(decimal.RequireFromString("0.45")))
	assert.True(t, m.MaxPrice.Equal(decimal.RequireFromString("74.90")))
	assert.Len(t, m.Categories, 5)
}

func TestCart_AddRemoveRoundTrip(t *testing.T) {
	client, backend := setup(t)
	ctx := context.Background()

	require.NoError(t, client.AddToCart(ctx, 2, 3))
	require.NoError(t, client.AddToCart(ctx, 2, 1))

	c, err := client.GetCart(ctx)
	require.NoError(t, err)
	line, ok := c.Line(2)
	require.True(t, ok)
	assert.Equal(t, 4, line.Quantity)
	assert.Equal(t, "White cement 25kg", line.Name)
	assert.True(t, line.Total().Equal(decimal.RequireFromString("50.4")))

	require.NoError(t, client.RemoveFromCart(ctx, 2))
	c, err = client.GetCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)

	assert.Equal(t, []string{
		"POST /api/cart",
		"POST /api/cart",
		"GET /api/cart",
		"DELETE /api/cart/2",
		"GET /api/cart",
	}, backend.CallLog("/api/cart"))
}

func TestCart_ContextTokenWins(t *testing.T) {
	client, backend := setup(t)

	ctx := shopapi.WithToken(context.Background(), "user-2")
	require.NoError(t, client.AddToCart(ctx, 1, 1))

	assert.Equal(t, 1, backend.Store().CartQuantity("user-2", 1))
	assert.Equal(t, 0, backend.Store().CartQuantity(token, 1))
}

func TestDo_PropagatesRequestID(t *testing.T) {
	got := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-Request-ID")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{"items": []any{}}})
	}))
	defer srv.Close()

	client, err := shopapi.New(shopapi.Config{BaseURL: srv.URL, Logger: logger.Discard()})
	require.NoError(t, err)

	_, err = client.GetCart(shopapi.WithRequestID(context.Background(), "req-42"))
	require.NoError(t, err)
	_, err = client.GetCart(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "req-42", <-got)
	generated := <-got
	assert.NotEmpty(t, generated)
	assert.NotEqual(t, "req-42", generated)
}

func TestDo_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   shopapi.Kind
		msg    string
	}{
		{name: "unauthenticated", status: 401, body: `{"success":false,"message":"login required"}`, kind: shopapi.KindUnauthenticated, msg: "login required"},
		{name: "forbidden", status: 403, body: `{"success":false,"message":"nope"}`, kind: shopapi.KindForbidden, msg: "nope"},
		{name: "not found", status: 404, body: `{"success":false}`, kind: shopapi.KindNotFound, msg: `{"success":false}`},
		{name: "business 4xx", status: 422, body: `{"success":false,"message":"out of stock"}`, kind: shopapi.KindBusiness, msg: "out of stock"},
		{name: "success false on 200", status: 200, body: `{"success":false,"message":"coupon expired"}`, kind: shopapi.KindBusiness, msg: "coupon expired"},
		{name: "server error", status: 500, body: `oops`, kind: shopapi.KindUnexpected, msg: "oops"},
		{name: "malformed body", status: 200, body: `<html>`, kind: shopapi.KindUnexpected, msg: "malformed response body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := shopapi.New(shopapi.Config{BaseURL: srv.URL, Logger: logger.Discard()})
			require.NoError(t, err)

			err = client.RemoveFromCart(context.Background(), 1)
			require.Error(t, err)
			assert.Equal(t, tt.kind, shopapi.KindOf(err))
			assert.Equal(t, tt.msg, shopapi.MessageOf(err))
		})
	}
}

func TestDo_MissingSuccessFieldIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":7,"name":"Saw","price":"12.00"}}`))
	}))
	defer srv.Close()

	client, err := shopapi.New(shopapi.Config{BaseURL: srv.URL, Logger: logger.Discard()})
	require.NoError(t, err)

	p, err := client.GetProduct(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Saw", p.Name)
}

func TestDo_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client, err := shopapi.New(shopapi.Config{BaseURL: base, Logger: logger.Discard()})
	require.NoError(t, err)

	err = client.AddToCart(context.Background(), 1, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, shopapi.ErrNetwork)
}

func TestDo_AbortedResponseIsNetworkError(t *testing.T) {
	client, backend := setup(t)
	backend.FailNext(http.MethodPost, "/api/cart", 0, "")

	err := client.AddToCart(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Equal(t, shopapi.KindNetwork, shopapi.KindOf(err))
}

func TestDo_BreakerOpensAfterServerFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := shopapi.New(shopapi.Config{
		BaseURL: srv.URL,
		Logger:  logger.Discard(),
		Breaker: circuitbreaker.Config{MaxRequests: 1, Timeout: time.Minute, ConsecutiveFailures: 2},
	})
	require.NoError(t, err)

	for range 2 {
		err = client.AddToCart(context.Background(), 1, 1)
		assert.Equal(t, shopapi.KindUnexpected, shopapi.KindOf(err))
	}

	err = client.AddToCart(context.Background(), 1, 1)
	assert.ErrorIs(t, err, shopapi.ErrNetwork)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCheckoutFlow(t *testing.T) {
	client, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, client.AddToCart(ctx, 1, 10))

	promo, err := client.ValidatePromotion(ctx, "welcome10", decimal.NewFromInt(95))
	require.NoError(t, err)
	assert.True(t, promo.DiscountAmount.Equal(decimal.RequireFromString("9.5")))

	order, err := client.CreateOrder(ctx, shopapi.CreateOrderRequest{
		ShippingAddress: "1 Main St",
		PromotionCode:   "WELCOME10",
		PaymentMethod:   fakebackend.MethodCard,
	})
	require.NoError(t, err)
	assert.Equal(t, fakebackend.StatusPending, order.Status)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("85.5")))

	payment, err := client.CreatePayment(ctx, shopapi.CreatePaymentRequest{OrderID: order.ID, Method: fakebackend.MethodCard})
	require.NoError(t, err)
	assert.Equal(t, order.ID, payment.OrderID)
	assert.Equal(t, "captured", payment.Status)

	got, err := client.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, fakebackend.StatusPaid, got.Status)

	orders, err := client.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	c, err := client.GetCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
}

func TestValidatePromotion_Unknown(t *testing.T) {
	client, _ := setup(t)

	_, err := client.ValidatePromotion(context.Background(), "NOPE", decimal.NewFromInt(10))
	assert.ErrorIs(t, err, shopapi.ErrBusiness)
}

func TestFavoritesReviewsForum(t *testing.T) {
	client, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, client.AddFavorite(ctx, 5))
	require.NoError(t, client.AddFavorite(ctx, 5))
	favs, err := client.ListFavorites(ctx)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, int64(5), favs[0].ID)
	require.NoError(t, client.RemoveFavorite(ctx, 5))

	_, err = client.CreateReview(ctx, 5, shopapi.ReviewInput{Rating: 6})
	assert.ErrorIs(t, err, shopapi.ErrBusiness)
	rv, err := client.CreateReview(ctx, 5, shopapi.ReviewInput{Rating: 4, Comment: "solid"})
	require.NoError(t, err)
	assert.Equal(t, token, rv.Author)
	reviews, err := client.ListReviews(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, reviews, 1)

	post, err := client.CreateForumPost(ctx, shopapi.ForumPostInput{Title: "Mortar mix", Content: "3:1 or 4:1?"})
	require.NoError(t, err)
	posts, total, err := client.ListForumPosts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, posts, 1)
	got, err := client.GetForumPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mortar mix", got.Title)
}

func TestRevenue_RequiresAdmin(t *testing.T) {
	client, _ := setup(t)

	_, err := client.Revenue(context.Background(), shopapi.RevenueQuery{GroupBy: "day"})
	assert.ErrorIs(t, err, shopapi.ErrForbidden)

	ctx := shopapi.WithToken(context.Background(), fakebackend.DefaultAdminToken)
	points, err := client.Revenue(ctx, shopapi.RevenueQuery{GroupBy: "month"})
	require.NoError(t, err)
	assert.Empty(t, points)
}

// The client is the reconciler's store; these check the exact backend calls.
func TestReconcilerAgainstBackend(t *testing.T) {
	tests := []struct {
		name     string
		start    int
		request  int
		calls    []string
		final    int
		expected cart.Action
	}{
		{
			name: "increase", start: 3, request: 5, final: 5, expected: cart.ActionIncrement,
			calls: []string{"POST /api/cart", "GET /api/cart"},
		},
		{
			name: "decrease", start: 5, request: 2, final: 2, expected: cart.ActionReplace,
			calls: []string{"DELETE /api/cart/3", "POST /api/cart", "GET /api/cart"},
		},
		{
			name: "remove", start: 4, request: 0, final: 0, expected: cart.ActionRemove,
			calls: []string{"DELETE /api/cart/3", "GET /api/cart"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, backend := setup(t)
			ctx := context.Background()
			require.NoError(t, client.AddToCart(ctx, 3, tt.start))
			c, err := client.GetCart(ctx)
			require.NoError(t, err)
			view := cart.NewView(c)
			backend.ResetCalls()

			r := cart.NewReconciler(client, cart.Always)
			out, err := r.SetQuantity(ctx, view, cart.Request{ProductID: 3, Requested: tt.request})
			require.NoError(t, err)

			assert.Equal(t, tt.expected, out.Action)
			assert.Equal(t, tt.calls, backend.CallLog("/api/cart"))
			assert.Equal(t, tt.final, out.Displayed)
			assert.Equal(t, tt.final, backend.Store().CartQuantity(token, 3))
		})
	}
}

func TestReconcilerAgainstBackend_ReAddRejectedRestoresPrevious(t *testing.T) {
	client, backend := setup(t)
	ctx := context.Background()
	require.NoError(t, client.AddToCart(ctx, 3, 5))
	c, err := client.GetCart(ctx)
	require.NoError(t, err)
	view := cart.NewView(c)

	backend.FailNext(http.MethodPost, "/api/cart", http.StatusBadRequest, "insufficient stock")

	r := cart.NewReconciler(client, cart.Always)
	out, err := r.SetQuantity(ctx, view, cart.Request{ProductID: 3, Requested: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, shopapi.ErrBusiness)
	assert.False(t, errors.Is(err, cart.ErrCartDiverged))

	assert.Equal(t, 5, out.Displayed)
	assert.Equal(t, 5, backend.Store().CartQuantity(token, 3))
}

func statusOf(err error) int {
	var apiErr *shopapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
