package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_storefront/pkg/shopapi"
)

type CommunityBackend interface {
	ListFavorites(ctx context.Context) ([]shopapi.Product, error)
	AddFavorite(ctx context.Context, productID int64) error
	RemoveFavorite(ctx context.Context, productID int64) error
	ListForumPosts(ctx context.Context, page int) ([]shopapi.ForumPost, int, error)
	GetForumPost(ctx context.Context, id int64) (*shopapi.ForumPost, error)
	CreateForumPost(ctx context.Context, in shopapi.ForumPostInput) (*shopapi.ForumPost, error)
}

// CommunityHandler serves favorites and the forum.
type CommunityHandler struct {
	backend CommunityBackend
	errs    errorMapper
	timeout time.Duration
}

func NewCommunityHandler(backend CommunityBackend, errs errorMapper, timeout time.Duration) *CommunityHandler {
	return &CommunityHandler{
		backend: backend,
		errs:    errs,
		timeout: timeout,
	}
}

type PostsResponse struct {
	Posts []shopapi.ForumPost `json:"posts"`
	Total int                 `json:"total"`
	Page  int                 `json:"page"`
}

func (h *CommunityHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.backend.ListFavorites(ctx)
	if err != nil {
		h.errs.handle(w, err)
		return
	}
	if products == nil {
		products = []shopapi.Product{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *CommunityHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.backend.AddFavorite(ctx, req.ProductID); err != nil {
		h.errs.handle(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CommunityHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "product_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.backend.RemoveFavorite(ctx, id); err != nil {
		h.errs.handle(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CommunityHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid_argument", "page must be a positive integer")
			return
		}
		page = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	posts, total, err := h.backend.ListForumPosts(ctx, page)
	if err != nil {
		h.errs.handle(w, err)
		return
	}
	if posts == nil {
		posts = []shopapi.ForumPost{}
	}
	respondJSON(w, http.StatusOK, PostsResponse{Posts: posts, Total: total, Page: page})
}

func (h *CommunityHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_argument", "invalid post id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.backend.GetForumPost(ctx, id)
	if err != nil {
		h.errs.handle(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *CommunityHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req shopapi.ForumPostInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respondError(w, http.StatusBadRequest, "invalid_argument", "title is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.backend.CreateForumPost(ctx, req)
	if err != nil {
		h.errs.handle(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}
