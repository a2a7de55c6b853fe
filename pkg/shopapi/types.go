package shopapi

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Envelope is the body shape of every backend response.
type Envelope struct {
	Success *bool           `json:"success,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Total   *int            `json:"total,omitempty"`
}

type Product struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Price           decimal.Decimal `json:"price"`
	DiscountedPrice decimal.Decimal `json:"discountedPrice"`
	Stock           int             `json:"stock"`
	CategoryID      int64           `json:"categoryId"`
	CategoryName    string          `json:"categoryName,omitempty"`
	ImageURL        string          `json:"imageUrl,omitempty"`
	Rating          float64         `json:"rating,omitempty"`
	SoldCount       int             `json:"soldCount,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func (p Product) InStock() bool { return p.Stock > 0 }

type ProductPage struct {
	Items []Product `json:"items"`
	Total int       `json:"total"`
}

type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parentId,omitempty"`
}

// FilterMetadata is what the listing page needs to draw its filter panel.
type FilterMetadata struct {
	MinPrice   decimal.Decimal `json:"minPrice"`
	MaxPrice   decimal.Decimal `json:"maxPrice"`
	Categories []Category      `json:"categories"`
}

type CartItem struct {
	ProductID           int64           `json:"productId"`
	ProductName         string          `json:"productName"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unitPrice"`
	DiscountedUnitPrice decimal.Decimal `json:"discountedUnitPrice"`
}

type CartData struct {
	Items []CartItem `json:"items"`
}

type AddToCartRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type OrderItem struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type Order struct {
	ID              int64           `json:"id"`
	Status          string          `json:"status"`
	Items           []OrderItem     `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
	PromotionCode   string          `json:"promotionCode,omitempty"`
	PaymentMethod   string          `json:"paymentMethod"`
	ShippingAddress string          `json:"shippingAddress"`
	Phone           string          `json:"phone,omitempty"`
	Note            string          `json:"note,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type CreateOrderRequest struct {
	ShippingAddress string `json:"shippingAddress"`
	Phone           string `json:"phone,omitempty"`
	Note            string `json:"note,omitempty"`
	PromotionCode   string `json:"promotionCode,omitempty"`
	PaymentMethod   string `json:"paymentMethod"`
}

type CreatePaymentRequest struct {
	OrderID int64  `json:"orderId"`
	Method  string `json:"method"`
}

type Payment struct {
	ID          int64           `json:"paymentId"`
	OrderID     int64           `json:"orderId"`
	Method      string          `json:"method"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
}

type Promotion struct {
	Code           string          `json:"code"`
	Description    string          `json:"description,omitempty"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

type Review struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"productId"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type ForumPost struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type ForumPostInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type FavoriteRequest struct {
	ProductID int64 `json:"productId"`
}

type RevenuePoint struct {
	Period  string          `json:"period"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int             `json:"orders"`
}

type RevenueQuery struct {
	From    time.Time
	To      time.Time
	GroupBy string // "day" or "month"
}
