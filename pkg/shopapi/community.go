package shopapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) ListFavorites(ctx context.Context) ([]Product, error) {
	var products []Product
	if _, err := c.do(ctx, http.MethodGet, "/api/favorites", nil, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) AddFavorite(ctx context.Context, productID int64) error {
	_, err := c.do(ctx, http.MethodPost, "/api/favorites", nil, FavoriteRequest{ProductID: productID}, nil)
	return err
}

func (c *Client) RemoveFavorite(ctx context.Context, productID int64) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/favorites/"+strconv.FormatInt(productID, 10), nil, nil, nil)
	return err
}

func (c *Client) ListReviews(ctx context.Context, productID int64) ([]Review, error) {
	var reviews []Review
	path := "/api/products/" + strconv.FormatInt(productID, 10) + "/reviews"
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

func (c *Client) CreateReview(ctx context.Context, productID int64, in ReviewInput) (*Review, error) {
	var r Review
	path := "/api/products/" + strconv.FormatInt(productID, 10) + "/reviews"
	if _, err := c.do(ctx, http.MethodPost, path, nil, in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListForumPosts returns one page of posts and the total post count.
func (c *Client) ListForumPosts(ctx context.Context, page int) ([]ForumPost, int, error) {
	var q url.Values
	if page > 0 {
		q = url.Values{"page": {strconv.Itoa(page)}}
	}
	var posts []ForumPost
	total, err := c.do(ctx, http.MethodGet, "/api/forum/posts", q, nil, &posts)
	if err != nil {
		return nil, 0, err
	}
	if total < 0 {
		total = len(posts)
	}
	return posts, total, nil
}

func (c *Client) GetForumPost(ctx context.Context, id int64) (*ForumPost, error) {
	var p ForumPost
	if _, err := c.do(ctx, http.MethodGet, "/api/forum/posts/"+strconv.FormatInt(id, 10), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) CreateForumPost(ctx context.Context, in ForumPostInput) (*ForumPost, error) {
	var p ForumPost
	if _, err := c.do(ctx, http.MethodPost, "/api/forum/posts", nil, in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
