// Package fakebackend serves the storefront REST contract from memory. It records
// every call and can be told to fail the next matching request, which is what the
// client and reconciler tests need to observe exact call sequences.
package fakebackend

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/fjod/go_storefront/pkg/filter"
	"github.com/fjod/go_storefront/pkg/shopapi"
)

const DefaultAdminToken = "admin-token"

// Call is one request as the backend received it.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Body   string
	Token  string
}

// String renders a call as "METHOD /path".
func (c Call) String() string { return c.Method + " " + c.Path }

type failure struct {
	method  string
	path    string
	status  int
	message string
}

type Server struct {
	store      *Store
	adminToken string
	router     chi.Router

	m        sync.RWMutex
	calls    []Call
	failures []failure
}

type Option func(*Server)

func WithAdminToken(token string) Option {
	return func(s *Server) { s.adminToken = token }
}

func New(store *Store, opts ...Option) *Server {
	s := &Server{store: store, adminToken: DefaultAdminToken}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)
	r.Use(s.inject)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products/search", s.search)
		r.Get("/products/filters", s.filters)
		r.Get("/products/{id}", s.product)
		r.Get("/products/{id}/reviews", s.reviews)
		r.Get("/forum/posts", s.posts)
		r.Get("/forum/posts/{id}", s.post)
		r.Get("/promotions/validate", s.validatePromotion)

		r.Group(func(r chi.Router) {
			r.Use(requireToken)
			r.Get("/cart", s.cart)
			r.Post("/cart", s.addToCart)
			r.Delete("/cart/{id}", s.removeFromCart)
			r.Get("/orders", s.orders)
			r.Post("/orders", s.createOrder)
			r.Get("/orders/{id}", s.order)
			r.Post("/payments", s.pay)
			r.Get("/favorites", s.favorites)
			r.Post("/favorites", s.addFavorite)
			r.Delete("/favorites/{id}", s.removeFavorite)
			r.Post("/products/{id}/reviews", s.addReview)
			r.Post("/forum/posts", s.addPost)
			r.With(s.requireAdmin).Get("/admin/revenue", s.revenue)
		})
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) Store() *Store { return s.store }

// Calls returns a copy of every request received so far.
func (s *Server) Calls() []Call {
	s.m.RLock()
	defer s.m.RUnlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallLog is Calls rendered with Call.String, filtered to paths under prefix.
func (s *Server) CallLog(prefix string) []string {
	var out []string
	for _, c := range s.Calls() {
		if strings.HasPrefix(c.Path, prefix) {
			out = append(out, c.String())
		}
	}
	return out
}

func (s *Server) ResetCalls() {
	s.m.Lock()
	s.calls = nil
	s.m.Unlock()
}

// FailNext makes the next request matching method and path fail with status and
// message. Status 0 aborts the connection without a response.
func (s *Server) FailNext(method, path string, status int, message string) {
	s.m.Lock()
	defer s.m.Unlock()
	s.failures = append(s.failures, failure{method: method, path: path, status: status, message: message})
}

func (s *Server) takeFailure(r *http.Request) (failure, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	for i, f := range s.failures {
		if f.method == r.Method && f.path == r.URL.Path {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
			return f, true
		}
	}
	return failure{}, false
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		s.m.Lock()
		s.calls = append(s.calls, Call{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Body:   string(body),
			Token:  bearer(r),
		})
		s.m.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := s.takeFailure(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if f.status == 0 {
			panic(http.ErrAbortHandler)
		}
		respondFail(w, f.status, f.message)
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearer(r) == "" {
			respondFail(w, http.StatusUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearer(r) != s.adminToken {
			respondFail(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Total   *int   `json:"total,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, envelope{Success: true, Data: data})
}

func respondFail(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, envelope{Success: false, Message: message})
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrPostNotFound):
		respondFail(w, http.StatusNotFound, err.Error())
	default:
		respondFail(w, http.StatusBadRequest, err.Error())
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondFail(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondFail(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	st, err := filter.ParseQuery(r.URL.Query())
	if err != nil {
		respondFail(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total := s.store.Search(st)
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: items, Total: &total})
}

func (s *Server) filters(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, s.store.FilterMetadata())
}

func (s *Server) product(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := s.store.Product(id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, p)
}

func (s *Server) cart(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, s.store.Cart(bearer(r)))
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	var req shopapi.AddToCartRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.AddToCart(bearer(r), req.ProductID, req.Quantity); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: "added to cart"})
}

func (s *Server) removeFromCart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.RemoveFromCart(bearer(r), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: "removed from cart"})
}

func (s *Server) validatePromotion(w http.ResponseWriter, r *http.Request) {
	subtotal, err := decimal.NewFromString(r.URL.Query().Get("subtotal"))
	if err != nil {
		respondFail(w, http.StatusBadRequest, "subtotal must be a number")
		return
	}
	p, err := s.store.ValidatePromotion(r.URL.Query().Get("code"), subtotal)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, p)
}

func (s *Server) orders(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, s.store.Orders(bearer(r)))
}

func (s *Server) order(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	o, err := s.store.Order(bearer(r), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, o)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req shopapi.CreateOrderRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := s.store.CreateOrder(bearer(r), req)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusCreated, o)
}

func (s *Server) pay(w http.ResponseWriter, r *http.Request) {
	var req shopapi.CreatePaymentRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.store.Pay(bearer(r), req)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusCreated, p)
}

func (s *Server) favorites(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, s.store.Favorites(bearer(r)))
}

func (s *Server) addFavorite(w http.ResponseWriter, r *http.Request) {
	var req shopapi.FavoriteRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.AddFavorite(bearer(r), req.ProductID); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: "added to favorites"})
}

func (s *Server) removeFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.RemoveFavorite(bearer(r), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: "removed from favorites"})
}

func (s *Server) reviews(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rs, err := s.store.Reviews(id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, rs)
}

func (s *Server) addReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in shopapi.ReviewInput
	if !decode(w, r, &in) {
		return
	}
	rv, err := s.store.AddReview(bearer(r), id, in)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusCreated, rv)
}

func (s *Server) posts(w http.ResponseWriter, r *http.Request) {
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondFail(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = n
	}
	posts, total := s.store.Posts(page)
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: posts, Total: &total})
}

func (s *Server) post(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := s.store.Post(id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, p)
}

func (s *Server) addPost(w http.ResponseWriter, r *http.Request) {
	var in shopapi.ForumPostInput
	if !decode(w, r, &in) {
		return
	}
	p, err := s.store.AddPost(bearer(r), in)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusCreated, p)
}

func (s *Server) revenue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var from, to time.Time
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			respondFail(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse("2006-01-02", v); err != nil {
			respondFail(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
	}
	points, err := s.store.Revenue(from, to, q.Get("groupBy"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, points)
}
