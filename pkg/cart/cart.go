package cart

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Line is one product in the cart. Quantity is always at least 1; a line that would
// drop to zero is removed instead.
type Line struct {
	ProductID           int64           `json:"product_id"`
	Name                string          `json:"name,omitempty"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	DiscountedUnitPrice decimal.Decimal `json:"discounted_unit_price"`
}

// EffectiveUnitPrice is the discounted price when one is set, the list price otherwise.
func (l Line) EffectiveUnitPrice() decimal.Decimal {
	if l.DiscountedUnitPrice.IsPositive() && l.DiscountedUnitPrice.LessThan(l.UnitPrice) {
		return l.DiscountedUnitPrice
	}
	return l.UnitPrice
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l Line) Total() decimal.Decimal {
	return l.EffectiveUnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Cart struct {
	Lines []Line `json:"lines"`
}

func (c *Cart) Line(productID int64) (Line, bool) {
	if c == nil {
		return Line{}, false
	}
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return Line{}, false
}

func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Subtotal is the cart value at list prices.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	if c == nil {
		return sum
	}
	for _, l := range c.Lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// Total is the cart value after per-line discounts.
func (c *Cart) Total() decimal.Decimal {
	sum := decimal.Zero
	if c == nil {
		return sum
	}
	for _, l := range c.Lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

func (c *Cart) Discount() decimal.Decimal {
	return c.Subtotal().Sub(c.Total())
}

// View holds the quantities last shown to the user, keyed by product.
type View struct {
	mu         sync.Mutex
	quantities map[int64]int
}

func NewView(c *Cart) *View {
	v := &View{quantities: make(map[int64]int)}
	v.Replace(c)
	return v
}

func (v *View) Quantity(productID int64) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.quantities[productID]
}

func (v *View) Set(productID int64, quantity int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if quantity <= 0 {
		delete(v.quantities, productID)
		return
	}
	v.quantities[productID] = quantity
}

// Replace discards every displayed value in favour of the server's cart.
func (v *View) Replace(c *Cart) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.quantities = make(map[int64]int)
	if c == nil {
		return
	}
	for _, l := range c.Lines {
		if l.Quantity > 0 {
			v.quantities[l.ProductID] = l.Quantity
		}
	}
}
