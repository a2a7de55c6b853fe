package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/api-gateway/internal/service"
	"github.com/fjod/go_storefront/pkg/shopapi"
)

const dateLayout = "2006-01-02"

type AdminHandler struct {
	analytics *service.AnalyticsService
	errs      errorMapper
	timeout   time.Duration
}

func NewAdminHandler(analytics *service.AnalyticsService, errs errorMapper, timeout time.Duration) *AdminHandler {
	return &AdminHandler{
		analytics: analytics,
		errs:      errs,
		timeout:   timeout,
	}
}

// GET /api/v1/admin/revenue?from=2025-01-01&to=2025-01-31&groupBy=day
func (h *AdminHandler) Revenue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var rq shopapi.RevenueQuery
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &rq.From}, {"to", &rq.To}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_argument", p.name+" must be a date like 2025-01-31")
			return
		}
		*p.dst = t
	}
	rq.GroupBy = q.Get("groupBy")

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.analytics.Revenue(ctx, rq)
	if err != nil {
		h.errs.handle(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
