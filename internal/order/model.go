package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Order lifecycle. Delivered and cancelled are terminal.
var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// NextStatuses returns the statuses an order in s may move to.
func NextStatuses(s Status) []Status {
	next := allowedTransitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

const (
	PaymentCOD     = "cod"
	PaymentGateway = "gateway"
)

// Item is a line snapshot taken at checkout; later product edits do not touch it.
type Item struct {
	ID           uuid.UUID       `json:"id"`
	OrderID      uuid.UUID       `json:"order_id"`
	ProductID    uuid.NullUUID   `json:"product_id"`
	SellerID     uuid.UUID       `json:"seller_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	UnitPrice    decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	BuyerName       string          `json:"user_name,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          Status          `json:"status"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentRef      string          `json:"payment_id,omitempty"`
	ShippingAddress string          `json:"shipping_address"`
	ContactNumber   string          `json:"contact_number"`
	Items           []Item          `json:"items,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SellerView is an order as one seller may see it: shared header fields and
// only the lines that seller sold.
type SellerView struct {
	Order          Order           `json:"order"`
	Items          []Item          `json:"items"`
	BuyerName      string          `json:"user_name"`
	SellerSubtotal decimal.Decimal `json:"seller_subtotal"`
}

func NewSellerView(o *Order, sellerID uuid.UUID) *SellerView {
	header := *o
	header.Items = nil

	view := &SellerView{
		Order:          header,
		Items:          make([]Item, 0, len(o.Items)),
		BuyerName:      o.BuyerName,
		SellerSubtotal: decimal.Zero,
	}
	for _, it := range o.Items {
		if it.SellerID != sellerID {
			continue
		}
		view.Items = append(view.Items, it)
		view.SellerSubtotal = view.SellerSubtotal.Add(it.Subtotal())
	}
	return view
}
