package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_storefront/api-gateway/internal/service"
	"github.com/fjod/go_storefront/pkg/filter"
	"github.com/fjod/go_storefront/pkg/shopapi"
)

type ProductHandler struct {
	catalog *service.CatalogService
	errs    errorMapper
	timeout time.Duration
}

func NewProductHandler(catalog *service.CatalogService, errs errorMapper, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		errs:    errs,
		timeout: timeout,
	}
}

type ProductsResponse struct {
	Products []shopapi.Product `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	// PageSize is zero when the backend default applies.
	PageSize int `json:"page_size,omitempty"`
	// Query is the canonical query string for the applied filter.
	Query string `json:"query"`
}

type FiltersResponse struct {
	Categories []shopapi.Category `json:"categories"`
	MinPrice   decimal.Decimal    `json:"min_price"`
	MaxPrice   decimal.Decimal    `json:"max_price"`
	SortOrders []filter.SortOrder `json:"sort_orders"`
	Defaults   DefaultsResponse   `json:"defaults"`
}

type DefaultsResponse struct {
	PriceMin decimal.Decimal  `json:"price_min"`
	PriceMax decimal.Decimal  `json:"price_max"`
	Sort     filter.SortOrder `json:"sort"`
}

// List searches the catalog with the filter carried in the query string.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	st, err := filter.ParseQuery(r.URL.Query())
	if err != nil {
		h.errs.handle(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	page, err := h.catalog.Search(ctx, st)
	if err != nil {
		h.errs.handle(w, err)
		return
	}

	products := page.Items
	if products == nil {
		products = []shopapi.Product{}
	}
	respondJSON(w, http.StatusOK, &ProductsResponse{
		Products: products,
		Total:    page.Total,
		Page:     max(st.Page, 1),
		PageSize: min(st.PageSize, service.MaxPageSize),
		Query:    st.Query().Encode(),
	})
}

func (h *ProductHandler) Filters(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m, err := h.catalog.Filters(ctx)
	if err != nil {
		h.errs.handle(w, err)
		return
	}
	d, err := h.catalog.Defaults(ctx)
	if err != nil {
		h.errs.handle(w, err)
		return
	}

	respondJSON(w, http.StatusOK, &FiltersResponse{
		Categories: m.Categories,
		MinPrice:   m.MinPrice,
		MaxPrice:   m.MaxPrice,
		SortOrders: filter.SortOrders(),
		Defaults:   DefaultsResponse{PriceMin: d.PriceMin, PriceMax: d.PriceMax, Sort: d.Sort},
	})
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_argument", "invalid product id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	p, err := h.catalog.Product(ctx, id)
	if err != nil {
		h.errs.handle(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) Reviews(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_argument", "invalid product id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	reviews, err := h.catalog.Reviews(ctx, id)
	if err != nil {
		h.errs.handle(w, err)
		return
	}
	if reviews == nil {
		reviews = []shopapi.Review{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

func (h *ProductHandler) AddReview(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_argument", "invalid product id")
		return
	}

	var req shopapi.ReviewInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	review, err := h.catalog.AddReview(ctx, id, req)
	if err != nil {
		h.errs.handle(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, review)
}
