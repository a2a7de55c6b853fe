package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_storefront/pkg/shopapi"
)

var (
	ErrInvalidRange   = errors.New("from must not be after to")
	ErrInvalidGroupBy = errors.New("groupBy must be day or month")
)

type RevenueBackend interface {
	Revenue(ctx context.Context, q shopapi.RevenueQuery) ([]shopapi.RevenuePoint, error)
}

type RevenueSummary struct {
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	Orders            int             `json:"orders"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	BestPeriod        string          `json:"best_period,omitempty"`
	BestRevenue       decimal.Decimal `json:"best_revenue"`
}

type RevenueReport struct {
	Points  []shopapi.RevenuePoint `json:"points"`
	Summary RevenueSummary         `json:"summary"`
}

// Summarize totals a revenue series. The earliest period wins a tie for best.
func Summarize(points []shopapi.RevenuePoint) RevenueSummary {
	var s RevenueSummary
	for _, p := range points {
		s.TotalRevenue = s.TotalRevenue.Add(p.Revenue)
		s.Orders += p.Orders
		if s.BestPeriod == "" || p.Revenue.GreaterThan(s.BestRevenue) {
			s.BestPeriod = p.Period
			s.BestRevenue = p.Revenue
		}
	}
	if s.Orders > 0 {
		s.AverageOrderValue = s.TotalRevenue.Div(decimal.NewFromInt(int64(s.Orders))).Round(2)
	}
	return s
}

type AnalyticsService struct {
	backend RevenueBackend
}

func NewAnalyticsService(backend RevenueBackend) *AnalyticsService {
	return &AnalyticsService{backend: backend}
}

func (s *AnalyticsService) Revenue(ctx context.Context, q shopapi.RevenueQuery) (*RevenueReport, error) {
	switch q.GroupBy {
	case "":
		q.GroupBy = "day"
	case "day", "month":
	default:
		return nil, ErrInvalidGroupBy
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return nil, ErrInvalidRange
	}

	points, err := s.backend.Revenue(ctx, q)
	if err != nil {
		return nil, err
	}
	if points == nil {
		points = []shopapi.RevenuePoint{}
	}
	return &RevenueReport{Points: points, Summary: Summarize(points)}, nil
}
