package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	PaymentCOD     = "cod"
	PaymentGateway = "gateway"
)

// PaymentConfirmer runs the external gateway payment for amount and returns
// the gateway's payment reference. A user abort must surface as
// ErrPaymentCancelled or context.Canceled.
type PaymentConfirmer interface {
	Confirm(ctx context.Context, amount decimal.Decimal) (string, error)
}

type CheckoutInput struct {
	ShippingAddress string `json:"shipping_address" validate:"required"`
	ContactNumber   string `json:"contact_number" validate:"required,len=10,numeric"`
	PaymentMethod   string `json:"payment_method" validate:"required,oneof=cod gateway"`
}

type checkoutRequest struct {
	CheckoutInput
	PaymentID string `json:"payment_id,omitempty"`
}

// PlaceOrder converts the signed-in user's cart into an order.
//
// Nothing is sent when the input is invalid or the cart is empty. For gateway
// payments the confirmer runs first; a cancelled payment leaves the cart as is.
// Only one PlaceOrder per client may be in flight.
func (c *Client) PlaceOrder(ctx context.Context, in CheckoutInput) (*Receipt, error) {
	if err := c.check(in); err != nil {
		return nil, err
	}
	if c.Session() == nil {
		return nil, ErrAuthRequired
	}
	if !c.checkingOut.CompareAndSwap(false, true) {
		return nil, ErrCheckoutInFlight
	}
	defer c.checkingOut.Store(false)

	cart, err := c.GetCart(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: load cart before checkout: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	body := checkoutRequest{CheckoutInput: in}
	if in.PaymentMethod == PaymentGateway {
		ref, err := c.confirmPayment(ctx, cart.Total)
		if err != nil {
			return nil, err
		}
		body.PaymentID = ref
	}

	req, s, err := c.authedRequest(ctx)
	if err != nil {
		return nil, err
	}
	var out Receipt
	if err := c.execute(req.SetBody(body).SetResult(&out), http.MethodPost, "/checkout"); err != nil {
		return nil, err
	}

	log.Info().Stringer("order_id", out.OrderID).Str("status", string(out.Status)).Msg("client: order placed")
	c.notifyCartChanged(ctx, s)
	return &out, nil
}

func (c *Client) confirmPayment(ctx context.Context, amount decimal.Decimal) (string, error) {
	if c.confirmer == nil {
		return "", errors.New("client: gateway payment requested but no payment confirmer configured")
	}
	ref, err := c.confirmer.Confirm(ctx, amount)
	switch {
	case errors.Is(err, ErrPaymentCancelled), errors.Is(err, context.Canceled):
		return "", ErrPaymentCancelled
	case err != nil:
		return "", fmt.Errorf("client: confirm payment: %w", err)
	case ref == "":
		return "", ErrPaymentCancelled
	}
	return ref, nil
}
