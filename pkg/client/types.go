package client

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/storefront/internal/events"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

// Session is the signed-in identity. It is handed to the client explicitly
// with SetSession; the client never reads it from anywhere else.
type Session struct {
	UserID uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	Token  string    `json:"token"`
}

func (s *Session) IsSeller() bool {
	return s != nil && s.Role == "seller"
}

type User struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Address     string    `json:"address"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Product struct {
	ID          uuid.UUID       `json:"id"`
	SellerID    uuid.UUID       `json:"seller_id"`
	SellerName  string          `json:"seller_name,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"image_url"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ProductInput struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"image_url"`
}

type CartProduct struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url"`
	Stock    int             `json:"stock"`
}

type CartItem struct {
	ID        uuid.UUID   `json:"id"`
	ProductID uuid.UUID   `json:"product_id"`
	Quantity  int         `json:"quantity"`
	Product   CartProduct `json:"product"`
	CreatedAt time.Time   `json:"created_at"`
}

type Cart struct {
	UserID uuid.UUID       `json:"user_id"`
	Items  []CartItem      `json:"items"`
	Total  decimal.Decimal `json:"total"`
}

// Total recomputes quantity * price over the items; an empty cart is zero.
func Total(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Product.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// CartChanged tells subscribers to re-fetch the cart.
type CartChanged = events.CartChanged

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusPaid       OrderStatus = "paid"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// NextStatuses lists the statuses a seller may move an order in s to.
func NextStatuses(s OrderStatus) []OrderStatus {
	next := order.NextStatuses(order.Status(s))
	out := make([]OrderStatus, len(next))
	for i, st := range next {
		out[i] = OrderStatus(st)
	}
	return out
}

type OrderItem struct {
	ID           uuid.UUID       `json:"id"`
	OrderID      uuid.UUID       `json:"order_id"`
	ProductID    uuid.NullUUID   `json:"product_id"`
	SellerID     uuid.UUID       `json:"seller_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	UserName        string          `json:"user_name,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          OrderStatus     `json:"status"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentID       string          `json:"payment_id,omitempty"`
	ShippingAddress string          `json:"shipping_address"`
	ContactNumber   string          `json:"contact_number"`
	Items           []OrderItem     `json:"items,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type OrderDetails struct {
	Order      Order       `json:"order"`
	OrderItems []OrderItem `json:"order_items"`
	UserName   string      `json:"user_name"`
}

type SellerOrderDetails struct {
	Order          Order           `json:"order"`
	Items          []OrderItem     `json:"items"`
	UserName       string          `json:"user_name"`
	SellerSubtotal decimal.Decimal `json:"seller_subtotal"`
}

type StatusUpdate struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	Status       OrderStatus   `json:"status"`
	NextStatuses []OrderStatus `json:"next_statuses"`
}

type Receipt struct {
	Success     bool            `json:"success"`
	OrderID     uuid.UUID       `json:"order_id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}
