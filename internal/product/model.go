package product

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// SuggestedCategories is the category list offered by the seller form and the shop filter.
// Category remains free text.
var SuggestedCategories = []string{
	"Electronics",
	"Clothing",
	"Books",
	"Home & Kitchen",
	"Beauty",
	"Sports",
	"Toys",
	"Grocery",
	"Other",
}

type Product struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	SellerID    uuid.UUID       `json:"seller_id" db:"seller_id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Stock       int             `json:"stock" db:"stock"`
	Category    string          `json:"category" db:"category"`
	ImageURL    string          `json:"image_url" db:"image_url"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// ShopProduct is a catalog row with the seller's display name.
type ShopProduct struct {
	Product
	SellerName string `json:"seller_name" db:"seller_name"`
}
