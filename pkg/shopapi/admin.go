package shopapi

import (
	"context"
	"net/http"
	"net/url"
)

const dateLayout = "2006-01-02"

func (c *Client) Revenue(ctx context.Context, rq RevenueQuery) ([]RevenuePoint, error) {
	q := url.Values{}
	if !rq.From.IsZero() {
		q.Set("from", rq.From.Format(dateLayout))
	}
	if !rq.To.IsZero() {
		q.Set("to", rq.To.Format(dateLayout))
	}
	if rq.GroupBy != "" {
		q.Set("groupBy", rq.GroupBy)
	}
	var points []RevenuePoint
	if _, err := c.do(ctx, http.MethodGet, "/api/admin/revenue", q, nil, &points); err != nil {
		return nil, err
	}
	return points, nil
}
