package filter

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPriceRange = errors.New("minimum price must not exceed maximum price")
	ErrNegativePrice     = errors.New("price bounds must not be negative")
	ErrUnknownSort       = errors.New("unknown sort order")
	ErrInvalidParam      = errors.New("invalid filter parameter")
)

type SortOrder string

const (
	SortNewest      SortOrder = "newest"
	SortPriceAsc    SortOrder = "price-asc"
	SortPriceDesc   SortOrder = "price-desc"
	SortNameAsc     SortOrder = "name-asc"
	SortNameDesc    SortOrder = "name-desc"
	SortBestSelling SortOrder = "best-selling"

	DefaultSort = SortNewest
)

var sortOrders = []SortOrder{SortNewest, SortPriceAsc, SortPriceDesc, SortNameAsc, SortNameDesc, SortBestSelling}

// SortOrders lists every supported order, default first.
func SortOrders() []SortOrder {
	out := make([]SortOrder, len(sortOrders))
	copy(out, sortOrders)
	return out
}

func ParseSort(s string) (SortOrder, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultSort, nil
	}
	for _, o := range sortOrders {
		if string(o) == s {
			return o, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSort, s)
}

// Query parameter names understood by the backend search endpoint.
const (
	ParamKeyword  = "keyword"
	ParamCategory = "categoryId"
	ParamMinPrice = "minPrice"
	ParamMaxPrice = "maxPrice"
	ParamSort     = "sort"
	ParamInStock  = "inStock"
	ParamPage     = "page"
	ParamPageSize = "pageSize"
)

// State is everything the product listing is filtered by.
type State struct {
	Keyword     string
	CategoryID  *int64
	PriceMin    decimal.NullDecimal
	PriceMax    decimal.NullDecimal
	Sort        SortOrder
	InStockOnly bool
	Page        int
	PageSize    int
}

// Defaults are the server-provided reset values for the price slider and sort.
type Defaults struct {
	PriceMin decimal.Decimal
	PriceMax decimal.Decimal
	Sort     SortOrder
}

func (s State) Validate() error {
	if s.PriceMin.Valid && s.PriceMin.Decimal.IsNegative() {
		return ErrNegativePrice
	}
	if s.PriceMax.Valid && s.PriceMax.Decimal.IsNegative() {
		return ErrNegativePrice
	}
	if s.PriceMin.Valid && s.PriceMax.Valid && s.PriceMin.Decimal.GreaterThan(s.PriceMax.Decimal) {
		return ErrInvalidPriceRange
	}
	if s.Sort != "" {
		if _, err := ParseSort(string(s.Sort)); err != nil {
			return err
		}
	}
	if s.Page < 0 || s.PageSize < 0 {
		return fmt.Errorf("%w: paging must not be negative", ErrInvalidParam)
	}
	return nil
}

// Query encodes s for the backend. Absent fields are left out.
func (s State) Query() url.Values {
	q := url.Values{}
	if kw := strings.TrimSpace(s.Keyword); kw != "" {
		q.Set(ParamKeyword, kw)
	}
	if s.CategoryID != nil {
		q.Set(ParamCategory, strconv.FormatInt(*s.CategoryID, 10))
	}
	if s.PriceMin.Valid {
		q.Set(ParamMinPrice, s.PriceMin.Decimal.String())
	}
	if s.PriceMax.Valid {
		q.Set(ParamMaxPrice, s.PriceMax.Decimal.String())
	}
	sort := s.Sort
	if sort == "" {
		sort = DefaultSort
	}
	q.Set(ParamSort, string(sort))
	if s.InStockOnly {
		q.Set(ParamInStock, "true")
	}
	if s.Page > 0 {
		q.Set(ParamPage, strconv.Itoa(s.Page))
	}
	if s.PageSize > 0 {
		q.Set(ParamPageSize, strconv.Itoa(s.PageSize))
	}
	return q
}

// ParseQuery is the inverse of Query. The result is validated.
func ParseQuery(q url.Values) (State, error) {
	var s State
	s.Keyword = strings.TrimSpace(q.Get(ParamKeyword))

	if v := q.Get(ParamCategory); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return State{}, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidParam, ParamCategory)
		}
		s.CategoryID = &id
	}

	var err error
	if s.PriceMin, err = parsePrice(q, ParamMinPrice); err != nil {
		return State{}, err
	}
	if s.PriceMax, err = parsePrice(q, ParamMaxPrice); err != nil {
		return State{}, err
	}
	if s.Sort, err = ParseSort(q.Get(ParamSort)); err != nil {
		return State{}, err
	}
	if v := q.Get(ParamInStock); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return State{}, fmt.Errorf("%w: %s must be a boolean", ErrInvalidParam, ParamInStock)
		}
		s.InStockOnly = b
	}
	if s.Page, err = parseCount(q, ParamPage); err != nil {
		return State{}, err
	}
	if s.PageSize, err = parseCount(q, ParamPageSize); err != nil {
		return State{}, err
	}
	return s, s.Validate()
}

func parsePrice(q url.Values, key string) (decimal.NullDecimal, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %s must be a number", ErrInvalidParam, key)
	}
	return decimal.NewNullDecimal(d), nil
}

func parseCount(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidParam, key)
	}
	return n, nil
}

// Clear resets a state to the server defaults: no keyword, no category, full price range,
// default sort, every product regardless of stock.
func Clear(d Defaults) State {
	sort := d.Sort
	if sort == "" {
		sort = DefaultSort
	}
	return State{
		PriceMin: decimal.NewNullDecimal(d.PriceMin),
		PriceMax: decimal.NewNullDecimal(d.PriceMax),
		Sort:     sort,
	}
}
