package session

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_storefront/pkg/logger"
	"github.com/fjod/go_storefront/pkg/shopapi"
	"github.com/fjod/go_storefront/pkg/shopapi/fakebackend"
)

const user = "shopper"

type syncBuffer struct {
	m   sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.m.Lock()
	defer b.m.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.m.Lock()
	defer b.m.Unlock()
	return b.buf.String()
}

func setup(t *testing.T, input string) (*Session, *syncBuffer, *fakebackend.Server) {
	t.Helper()
	store := fakebackend.NewStore(nil)
	t.Cleanup(func() { store.Close() })
	fakebackend.Seed(store)
	backend := fakebackend.New(store)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client, err := shopapi.New(shopapi.Config{BaseURL: srv.URL, Token: user, Timeout: 5 * time.Second, Logger: logger.Discard()})
	require.NoError(t, err)

	out := &syncBuffer{}
	s := New(client, strings.NewReader(input), out, Options{Debounce: 10 * time.Millisecond})
	s.rendered = make(chan struct{}, 16)
	return s, out, backend
}

func waitRender(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.rendered:
	case <-time.After(2 * time.Second):
		t.Fatal("search result was not printed")
	}
}

func TestRun_CartCommands(t *testing.T) {
	input := strings.Join([]string{
		"add 1 3",
		"set 1 5",
		"set 1 2",
		"rm 1",
		"n",
		"rm 1",
		"y",
		"quit",
	}, "\n") + "\n"
	s, out, backend := setup(t, input)

	require.NoError(t, s.Run(context.Background()))
	waitRender(t, s)

	got := out.String()
	assert.Contains(t, got, "product 1: 3 -> 5")
	assert.Contains(t, got, "product 1: 5 -> 2")
	assert.Contains(t, got, "remove all 2 of product 1 from the cart? [y/N]")
	assert.Contains(t, got, "kept 2 of product 1")
	assert.Contains(t, got, "product 1: 2 -> 0")
	assert.Equal(t, 0, backend.Store().CartQuantity(user, 1))

	assert.Equal(t, []string{
		"POST /api/cart",                       // add 1 3
		"POST /api/cart",                       // set 1 5
		"DELETE /api/cart/1", "POST /api/cart", // set 1 2
		"DELETE /api/cart/1", // rm 1, confirmed
	}, filterMutations(backend.CallLog("/api/cart")))
}

func TestRun_EOFStops(t *testing.T) {
	s, out, _ := setup(t, "cart\n")
	require.NoError(t, s.Run(context.Background()))
	waitRender(t, s)
	assert.Contains(t, out.String(), "cart is empty")
}

func TestExec_Filters(t *testing.T) {
	s, out, _ := setup(t, "")
	ctx := context.Background()

	require.NoError(t, s.exec(ctx, "clear"))
	waitRender(t, s)
	assert.Contains(t, out.String(), "8 products")

	require.NoError(t, s.exec(ctx, "cat 5"))
	waitRender(t, s)
	assert.Contains(t, out.String(), "2 products")
	assert.Contains(t, out.String(), "Angle grinder")

	require.NoError(t, s.exec(ctx, "cat all"))
	waitRender(t, s)
	require.NoError(t, s.exec(ctx, "k trowel"))
	waitRender(t, s)
	assert.Contains(t, out.String(), "1 products (keyword=trowel")

	require.NoError(t, s.exec(ctx, "price 50 10"))
	assert.Contains(t, out.String(), "filter not applied")

	assert.Error(t, s.exec(ctx, "sort cheapest"))
	assert.Error(t, s.exec(ctx, "page 0"))
	assert.Error(t, s.exec(ctx, "teleport"))
}

func TestExec_KeywordDebounced(t *testing.T) {
	s, out, backend := setup(t, "")
	ctx := context.Background()
	require.NoError(t, s.exec(ctx, "clear"))
	waitRender(t, s)
	backend.ResetCalls()

	for _, k := range []string{"c", "ce", "cem", "ceme", "cement"} {
		require.NoError(t, s.exec(ctx, "k "+k))
	}
	waitRender(t, s)

	assert.Contains(t, out.String(), "2 products (keyword=cement")
	assert.Len(t, backend.CallLog("/api/products/search"), 1)
}

func TestExec_ShowFilters(t *testing.T) {
	s, out, _ := setup(t, "")

	require.NoError(t, s.exec(context.Background(), "filters"))
	got := out.String()
	assert.Contains(t, got, "price 0.45..74.90")
	assert.Contains(t, got, "  5 Power tools")
}

func TestExec_AddRejected(t *testing.T) {
	s, _, _ := setup(t, "")

	err := s.exec(context.Background(), "add 4 1")
	require.Error(t, err)
	assert.Equal(t, "insufficient stock", describe(err))
}

func filterMutations(calls []string) []string {
	var out []string
	for _, c := range calls {
		if !strings.HasPrefix(c, "GET") {
			out = append(out, c)
		}
	}
	return out
}
