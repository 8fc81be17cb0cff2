package cart

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// ProductSnapshot is the current state of the product behind a cart line.
type ProductSnapshot struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url"`
	Stock    int             `json:"stock"`
}

type Item struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Product   ProductSnapshot `json:"product"`
	CreatedAt time.Time       `json:"created_at"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	UserID uuid.UUID       `json:"user_id"`
	Items  []Item          `json:"items"`
	Total  decimal.Decimal `json:"total"`
}

// Total sums quantity * price over all items; an empty cart totals zero.
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func newCart(userID uuid.UUID, items []Item) *Cart {
	if items == nil {
		items = []Item{}
	}
	return &Cart{UserID: userID, Items: items, Total: Total(items)}
}

// Line is a cart row without its product. Only lines are cached; product
// data is read from the database on every GetCart.
type Line struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

func linesOf(items []Item) []Line {
	lines := make([]Line, len(items))
	for i, it := range items {
		lines[i] = Line{ID: it.ID, ProductID: it.ProductID, Quantity: it.Quantity, CreatedAt: it.CreatedAt}
	}
	return lines
}
