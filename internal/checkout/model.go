package checkout

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/storefront/internal/order"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrOutOfStock      = errors.New("not enough stock")
	ErrPaymentMismatch = errors.New("paid amount does not match cart total")
	ErrPaymentReused   = errors.New("payment reference already used")
)

var contactPattern = regexp.MustCompile(`^[0-9]{10}$`)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid checkout %s: %s", e.Field, e.Reason)
}

// OutOfStockError names the first cart line that cannot be filled.
type OutOfStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Available   int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("%s: only %d left, %d requested", e.ProductName, e.Available, e.Requested)
}

func (e *OutOfStockError) Is(target error) bool {
	return target == ErrOutOfStock
}

type Request struct {
	ShippingAddress string
	ContactNumber   string
	PaymentMethod   string
	PaymentRef      string
}

func (r *Request) normalize() {
	r.ShippingAddress = strings.TrimSpace(r.ShippingAddress)
	r.ContactNumber = strings.TrimSpace(r.ContactNumber)
	r.PaymentMethod = strings.ToLower(strings.TrimSpace(r.PaymentMethod))
	r.PaymentRef = strings.TrimSpace(r.PaymentRef)
}

func (r Request) validate() error {
	switch {
	case r.ShippingAddress == "":
		return &ValidationError{Field: "shipping_address", Reason: "is required"}
	case !contactPattern.MatchString(r.ContactNumber):
		return &ValidationError{Field: "contact_number", Reason: "must be exactly 10 digits"}
	case r.PaymentMethod != order.PaymentCOD && r.PaymentMethod != order.PaymentGateway:
		return &ValidationError{Field: "payment_method", Reason: "must be cod or gateway"}
	case r.PaymentMethod == order.PaymentGateway && r.PaymentRef == "":
		return &ValidationError{Field: "payment_id", Reason: "is required for gateway payments"}
	}
	return nil
}

// Draft is a validated request ready to be converted inside one transaction.
type Draft struct {
	UserID          uuid.UUID
	ShippingAddress string
	ContactNumber   string
	PaymentMethod   string
	PaymentRef      string
	// PaidAmount is the captured amount reported by the gateway; zero skips the check.
	PaidAmount decimal.Decimal
}

func (d Draft) initialStatus() order.Status {
	if d.PaymentMethod == order.PaymentGateway {
		return order.StatusPaid
	}
	return order.StatusPending
}

type Result struct {
	OrderID     uuid.UUID       `json:"order_id"`
	Status      order.Status    `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}
