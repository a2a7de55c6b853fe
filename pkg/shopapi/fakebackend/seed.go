package fakebackend

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_storefront/pkg/shopapi"
)

func ptr[T any](v T) *T { return &v }

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Seed fills s with a small hardware catalog, categories and promotion codes.
func Seed(s *Store) {
	for _, c := range []shopapi.Category{
		{ID: 1, Name: "Building materials"},
		{ID: 2, Name: "Cement", ParentID: ptr[int64](1)},
		{ID: 3, Name: "Bricks", ParentID: ptr[int64](1)},
		{ID: 4, Name: "Tools"},
		{ID: 5, Name: "Power tools", ParentID: ptr[int64](4)},
	} {
		s.PutCategory(c)
	}

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range []shopapi.Product{
		{ID: 1, Name: "Portland cement 50kg", Description: "General purpose grey cement", Price: money("9.50"), Stock: 200, CategoryID: 2, SoldCount: 540},
		{ID: 2, Name: "White cement 25kg", Description: "Decorative white cement", Price: money("14.00"), DiscountedPrice: money("12.60"), Stock: 40, CategoryID: 2, SoldCount: 120},
		{ID: 3, Name: "Red clay brick", Description: "Solid fired clay brick", Price: money("0.45"), Stock: 5000, CategoryID: 3, SoldCount: 9800},
		{ID: 4, Name: "Hollow concrete block", Description: "Lightweight block for partition walls", Price: money("1.20"), Stock: 0, CategoryID: 3, SoldCount: 300},
		{ID: 5, Name: "Claw hammer", Description: "16oz steel hammer", Price: money("11.99"), Stock: 35, CategoryID: 4, SoldCount: 210},
		{ID: 6, Name: "Cordless drill", Description: "18V drill with two batteries", Price: money("89.00"), DiscountedPrice: money("74.90"), Stock: 12, CategoryID: 5, SoldCount: 95},
		{ID: 7, Name: "Angle grinder", Description: "125mm grinder for cutting and polishing", Price: money("54.50"), Stock: 8, CategoryID: 5, SoldCount: 60},
		{ID: 8, Name: "Trowel", Description: "Pointed masonry trowel for cement work", Price: money("6.75"), Stock: 80, CategoryID: 4, SoldCount: 330},
	} {
		p.CreatedAt = base.AddDate(0, 0, i*7)
		s.PutProduct(p)
	}

	s.PutPromotion("WELCOME10", decimal.NewFromInt(10), decimal.Zero, "10% off your first order")
	s.PutPromotion("BULK15", decimal.NewFromInt(15), decimal.NewFromInt(200), "15% off orders over 200")
}
