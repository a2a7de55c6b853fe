package fakebackend

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_storefront/pkg/filter"
	"github.com/fjod/go_storefront/pkg/shopapi"
)

const (
	// ReservationTTL is how long an unpaid order holds its stock.
	ReservationTTL = 15 * time.Minute

	// CleanupInterval is how often expired reservations are released.
	CleanupInterval = 30 * time.Second

	DefaultPageSize = 12
	MaxPageSize     = 100
	ForumPageSize   = 10
)

// Errors returned by the store. The server maps the not-found ones to 404 and the
// rest to a 400 envelope with success=false.
var (
	ErrProductNotFound      = errors.New("product not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrPostNotFound         = errors.New("post not found")
	ErrNotInCart            = errors.New("product is not in the cart")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidPromotion     = errors.New("promotion code is not valid")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrInvalidStatus        = errors.New("order cannot be paid in its current status")
	ErrReservationExpired   = errors.New("order reservation has expired")
	ErrInvalidInput         = errors.New("invalid input")
)

// Order statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusPaid      = "paid"
	StatusExpired   = "expired"
)

// Payment methods.
const (
	MethodCOD  = "cod"
	MethodCard = "card"
)

type promotion struct {
	percent     decimal.Decimal
	minSubtotal decimal.Decimal
	description string
}

type stock struct {
	total    int
	reserved int
}

func (s stock) available() int { return s.total - s.reserved }

type order struct {
	owner     string
	order     shopapi.Order
	expiresAt time.Time
}

type cartLine struct {
	productID int64
	quantity  int
}

// Store is the in-memory state behind the fake backend. Carts, orders and favorites
// are keyed by the caller's token.
type Store struct {
	mu         sync.RWMutex
	now        func() time.Time
	products   map[int64]*shopapi.Product
	stocks     map[int64]*stock
	categories []shopapi.Category
	carts      map[string][]cartLine
	orders     map[int64]*order
	payments   map[int64]*shopapi.Payment
	promotions map[string]promotion
	favorites  map[string][]int64
	reviews    map[int64][]shopapi.Review
	posts      []shopapi.ForumPost
	nextID     int64

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{
		now:         now,
		products:    make(map[int64]*shopapi.Product),
		stocks:      make(map[int64]*stock),
		carts:       make(map[string][]cartLine),
		orders:      make(map[int64]*order),
		payments:    make(map[int64]*shopapi.Payment),
		promotions:  make(map[string]promotion),
		favorites:   make(map[string][]int64),
		reviews:     make(map[int64][]shopapi.Review),
		nextID:      1000,
		stopCleanup: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

func (s *Store) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ExpireReservations()
		case <-s.stopCleanup:
			return
		}
	}
}

// ExpireReservations releases the stock held by unpaid orders past their TTL.
func (s *Store) ExpireReservations() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, o := range s.orders {
		if o.order.Status != StatusPending || !now.After(o.expiresAt) {
			continue
		}
		o.order.Status = StatusExpired
		for _, it := range o.order.Items {
			s.stocks[it.ProductID].reserved -= it.Quantity
		}
		n++
	}
	return n
}

func (s *Store) Close() error {
	close(s.stopCleanup)
	s.wg.Wait()
	return nil
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// PutProduct adds or replaces a catalog entry; p.Stock becomes its total stock.
func (s *Store) PutProduct(p shopapi.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.products[p.ID] = &cp
	s.stocks[p.ID] = &stock{total: p.Stock}
}

func (s *Store) PutCategory(c shopapi.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append(s.categories, c)
}

// PutPromotion registers a percentage discount code.
func (s *Store) PutPromotion(code string, percent, minSubtotal decimal.Decimal, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promotions[strings.ToUpper(code)] = promotion{percent: percent, minSubtotal: minSubtotal, description: description}
}

func (s *Store) product(id int64) (shopapi.Product, bool) {
	p, ok := s.products[id]
	if !ok {
		return shopapi.Product{}, false
	}
	out := *p
	out.Stock = s.stocks[id].available()
	return out, true
}

func effectivePrice(p shopapi.Product) decimal.Decimal {
	if p.DiscountedPrice.IsPositive() && p.DiscountedPrice.LessThan(p.Price) {
		return p.DiscountedPrice
	}
	return p.Price
}

func (s *Store) Product(id int64) (shopapi.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.product(id)
	if !ok {
		return shopapi.Product{}, ErrProductNotFound
	}
	return p, nil
}

// categoryTree returns id and every descendant category id.
func (s *Store) categoryTree(id int64) map[int64]bool {
	tree := map[int64]bool{id: true}
	for changed := true; changed; {
		changed = false
		for _, c := range s.categories {
			if c.ParentID != nil && tree[*c.ParentID] && !tree[c.ID] {
				tree[c.ID] = true
				changed = true
			}
		}
	}
	return tree
}

// Search filters, sorts and pages the catalog. Pages are 1-based.
func (s *Store) Search(st filter.State) ([]shopapi.Product, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kw := strings.ToLower(strings.TrimSpace(st.Keyword))
	var cats map[int64]bool
	if st.CategoryID != nil {
		cats = s.categoryTree(*st.CategoryID)
	}

	matched := make([]shopapi.Product, 0, len(s.products))
	for id := range s.products {
		p, _ := s.product(id)
		if kw != "" && !strings.Contains(strings.ToLower(p.Name), kw) && !strings.Contains(strings.ToLower(p.Description), kw) {
			continue
		}
		if cats != nil && !cats[p.CategoryID] {
			continue
		}
		price := effectivePrice(p)
		if st.PriceMin.Valid && price.LessThan(st.PriceMin.Decimal) {
			continue
		}
		if st.PriceMax.Valid && price.GreaterThan(st.PriceMax.Decimal) {
			continue
		}
		if st.InStockOnly && !p.InStock() {
			continue
		}
		matched = append(matched, p)
	}

	sortProducts(matched, st.Sort)

	size := st.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	size = min(size, MaxPageSize)
	page := max(st.Page, 1)

	total := len(matched)
	start := min((page-1)*size, total)
	end := min(start+size, total)
	return matched[start:end], total
}

func sortProducts(ps []shopapi.Product, order filter.SortOrder) {
	less := func(a, b shopapi.Product) int {
		switch order {
		case filter.SortPriceAsc:
			return effectivePrice(a).Cmp(effectivePrice(b))
		case filter.SortPriceDesc:
			return effectivePrice(b).Cmp(effectivePrice(a))
		case filter.SortNameAsc:
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case filter.SortNameDesc:
			return strings.Compare(strings.ToLower(b.Name), strings.ToLower(a.Name))
		case filter.SortBestSelling:
			return b.SoldCount - a.SoldCount
		default:
			return b.CreatedAt.Compare(a.CreatedAt)
		}
	}
	slices.SortStableFunc(ps, func(a, b shopapi.Product) int {
		if c := less(a, b); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}

// FilterMetadata reports the effective price range of the whole catalog.
func (s *Store) FilterMetadata() shopapi.FilterMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m shopapi.FilterMetadata
	first := true
	for _, p := range s.products {
		price := effectivePrice(*p)
		if first || price.LessThan(m.MinPrice) {
			m.MinPrice = price
		}
		if first || price.GreaterThan(m.MaxPrice) {
			m.MaxPrice = price
		}
		first = false
	}
	m.Categories = slices.Clone(s.categories)
	return m
}

func (s *Store) Cart(owner string) shopapi.CartData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := shopapi.CartData{Items: make([]shopapi.CartItem, 0, len(s.carts[owner]))}
	for _, l := range s.carts[owner] {
		p := s.products[l.productID]
		data.Items = append(data.Items, shopapi.CartItem{
			ProductID:           p.ID,
			ProductName:         p.Name,
			Quantity:            l.quantity,
			UnitPrice:           p.Price,
			DiscountedUnitPrice: p.DiscountedPrice,
		})
	}
	return data
}

// AddToCart increments a line. The resulting quantity may not exceed available stock.
func (s *Store) AddToCart(owner string, productID int64, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stocks[productID]
	if !ok {
		return ErrProductNotFound
	}
	lines := s.carts[owner]
	i := slices.IndexFunc(lines, func(l cartLine) bool { return l.productID == productID })
	current := 0
	if i >= 0 {
		current = lines[i].quantity
	}
	if current+quantity > st.available() {
		return ErrInsufficientStock
	}
	if i >= 0 {
		lines[i].quantity += quantity
		return nil
	}
	s.carts[owner] = append(lines, cartLine{productID: productID, quantity: quantity})
	return nil
}

func (s *Store) RemoveFromCart(owner string, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.carts[owner]
	i := slices.IndexFunc(lines, func(l cartLine) bool { return l.productID == productID })
	if i < 0 {
		return ErrNotInCart
	}
	s.carts[owner] = slices.Delete(lines, i, i+1)
	return nil
}

// CartQuantity is a test helper.
func (s *Store) CartQuantity(owner string, productID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.carts[owner] {
		if l.productID == productID {
			return l.quantity
		}
	}
	return 0
}

func (s *Store) promotion(code string, subtotal decimal.Decimal) (shopapi.Promotion, error) {
	p, ok := s.promotions[strings.ToUpper(strings.TrimSpace(code))]
	if !ok || subtotal.LessThan(p.minSubtotal) {
		return shopapi.Promotion{}, ErrInvalidPromotion
	}
	return shopapi.Promotion{
		Code:           strings.ToUpper(strings.TrimSpace(code)),
		Description:    p.description,
		DiscountAmount: subtotal.Mul(p.percent).Div(decimal.NewFromInt(100)).Round(2),
	}, nil
}

func (s *Store) ValidatePromotion(code string, subtotal decimal.Decimal) (shopapi.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.promotion(code, subtotal)
}

// CreateOrder turns the owner's cart into a pending order, reserving its stock
// for ReservationTTL. The cart is emptied.
func (s *Store) CreateOrder(owner string, req shopapi.CreateOrderRequest) (shopapi.Order, error) {
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return shopapi.Order{}, fmt.Errorf("%w: shipping address is required", ErrInvalidInput)
	}
	if !validMethod(req.PaymentMethod) {
		return shopapi.Order{}, ErrUnknownPaymentMethod
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.carts[owner]
	if len(lines) == 0 {
		return shopapi.Order{}, ErrEmptyCart
	}
	// Validate everything before reserving anything.
	for _, l := range lines {
		if s.stocks[l.productID].available() < l.quantity {
			return shopapi.Order{}, ErrInsufficientStock
		}
	}

	o := shopapi.Order{
		ID:              s.id(),
		Status:          StatusPending,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
		Note:            req.Note,
		CreatedAt:       s.now(),
	}
	for _, l := range lines {
		p := s.products[l.productID]
		unit := effectivePrice(*p)
		o.Items = append(o.Items, shopapi.OrderItem{ProductID: p.ID, ProductName: p.Name, Quantity: l.quantity, UnitPrice: unit})
		o.Subtotal = o.Subtotal.Add(unit.Mul(decimal.NewFromInt(int64(l.quantity))))
	}
	if req.PromotionCode != "" {
		promo, err := s.promotion(req.PromotionCode, o.Subtotal)
		if err != nil {
			return shopapi.Order{}, err
		}
		o.PromotionCode = promo.Code
		o.Discount = promo.DiscountAmount
	}
	o.Total = o.Subtotal.Sub(o.Discount)

	for _, it := range o.Items {
		s.stocks[it.ProductID].reserved += it.Quantity
	}
	s.orders[o.ID] = &order{owner: owner, order: o, expiresAt: o.CreatedAt.Add(ReservationTTL)}
	delete(s.carts, owner)
	return o, nil
}

func validMethod(m string) bool {
	return m == MethodCOD || m == MethodCard
}

func (s *Store) Orders(owner string) []shopapi.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]shopapi.Order, 0)
	for _, o := range s.orders {
		if o.owner == owner {
			out = append(out, o.order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *Store) Order(owner string, id int64) (shopapi.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok || o.owner != owner {
		return shopapi.Order{}, ErrOrderNotFound
	}
	return o.order, nil
}

// Pay settles a pending order. Card payments are captured immediately; cash on
// delivery confirms the order and leaves the payment pending. Either way the
// reserved stock is deducted.
func (s *Store) Pay(owner string, req shopapi.CreatePaymentRequest) (shopapi.Payment, error) {
	if !validMethod(req.Method) {
		return shopapi.Payment{}, ErrUnknownPaymentMethod
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[req.OrderID]
	if !ok || o.owner != owner {
		return shopapi.Payment{}, ErrOrderNotFound
	}
	if o.order.Status != StatusPending {
		return shopapi.Payment{}, ErrInvalidStatus
	}
	if s.now().After(o.expiresAt) {
		return shopapi.Payment{}, ErrReservationExpired
	}

	for _, it := range o.order.Items {
		st := s.stocks[it.ProductID]
		st.total -= it.Quantity
		st.reserved -= it.Quantity
		s.products[it.ProductID].SoldCount += it.Quantity
	}

	p := shopapi.Payment{ID: s.id(), OrderID: o.order.ID, Method: req.Method, Amount: o.order.Total}
	switch req.Method {
	case MethodCard:
		p.Status = "captured"
		o.order.Status = StatusPaid
	default:
		p.Status = "pending"
		o.order.Status = StatusConfirmed
	}
	o.order.PaymentMethod = req.Method
	s.payments[p.ID] = &p
	return p, nil
}

func (s *Store) Favorites(owner string) []shopapi.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]shopapi.Product, 0, len(s.favorites[owner]))
	for _, id := range s.favorites[owner] {
		if p, ok := s.product(id); ok {
			out = append(out, p)
		}
	}
	return out
}

// AddFavorite is idempotent.
func (s *Store) AddFavorite(owner string, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		return ErrProductNotFound
	}
	if !slices.Contains(s.favorites[owner], productID) {
		s.favorites[owner] = append(s.favorites[owner], productID)
	}
	return nil
}

func (s *Store) RemoveFavorite(owner string, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	favs := s.favorites[owner]
	i := slices.Index(favs, productID)
	if i < 0 {
		return ErrProductNotFound
	}
	s.favorites[owner] = slices.Delete(favs, i, i+1)
	return nil
}

func (s *Store) Reviews(productID int64) ([]shopapi.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.products[productID]; !ok {
		return nil, ErrProductNotFound
	}
	out := slices.Clone(s.reviews[productID])
	if out == nil {
		out = []shopapi.Review{}
	}
	return out, nil
}

// AddReview stores a review and refreshes the product's average rating.
func (s *Store) AddReview(owner string, productID int64, in shopapi.ReviewInput) (shopapi.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return shopapi.Review{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return shopapi.Review{}, ErrProductNotFound
	}
	r := shopapi.Review{
		ID:        s.id(),
		ProductID: productID,
		Author:    owner,
		Rating:    in.Rating,
		Comment:   strings.TrimSpace(in.Comment),
		CreatedAt: s.now(),
	}
	s.reviews[productID] = append(s.reviews[productID], r)

	sum := 0
	for _, rv := range s.reviews[productID] {
		sum += rv.Rating
	}
	p.Rating = float64(sum) / float64(len(s.reviews[productID]))
	return r, nil
}

// Posts returns one page of posts, newest first, and the total count.
func (s *Store) Posts(page int) ([]shopapi.ForumPost, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page = max(page, 1)
	total := len(s.posts)
	out := make([]shopapi.ForumPost, 0, ForumPageSize)
	for i := total - 1 - (page-1)*ForumPageSize; i >= 0 && len(out) < ForumPageSize; i-- {
		out = append(out, s.posts[i])
	}
	return out, total
}

func (s *Store) Post(id int64) (shopapi.ForumPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return shopapi.ForumPost{}, ErrPostNotFound
}

func (s *Store) AddPost(owner string, in shopapi.ForumPostInput) (shopapi.ForumPost, error) {
	title, content := strings.TrimSpace(in.Title), strings.TrimSpace(in.Content)
	if title == "" || content == "" {
		return shopapi.ForumPost{}, fmt.Errorf("%w: title and content are required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := shopapi.ForumPost{ID: s.id(), Title: title, Content: content, Author: owner, CreatedAt: s.now()}
	s.posts = append(s.posts, p)
	return p, nil
}

// Revenue groups paid and confirmed orders by day or month. Zero from/to are open bounds;
// to is inclusive of the whole day.
func (s *Store) Revenue(from, to time.Time, groupBy string) ([]shopapi.RevenuePoint, error) {
	layout := "2006-01-02"
	switch groupBy {
	case "", "day":
	case "month":
		layout = "2006-01"
	default:
		return nil, fmt.Errorf("%w: groupBy must be day or month", ErrInvalidInput)
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, fmt.Errorf("%w: from must not be after to", ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make(map[string]*shopapi.RevenuePoint)
	for _, o := range s.orders {
		if o.order.Status != StatusPaid && o.order.Status != StatusConfirmed {
			continue
		}
		at := o.order.CreatedAt
		if !from.IsZero() && at.Before(from) {
			continue
		}
		if !to.IsZero() && !at.Before(to.AddDate(0, 0, 1)) {
			continue
		}
		key := at.Format(layout)
		b, ok := buckets[key]
		if !ok {
			b = &shopapi.RevenuePoint{Period: key}
			buckets[key] = b
		}
		b.Revenue = b.Revenue.Add(o.order.Total)
		b.Orders++
	}

	out := make([]shopapi.RevenuePoint, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}
