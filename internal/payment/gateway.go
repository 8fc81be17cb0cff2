package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"github.com/vasiliy-maslov/storefront/internal/config"
)

var (
	ErrPaymentCancelled   = errors.New("payment was cancelled or not completed")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Payment is the gateway's view of a completed client-side payment.
type Payment struct {
	Ref      string
	Amount   decimal.Decimal
	Currency string
	Status   string
}

// Verifier confirms that a payment reference produced by the client-side
// gateway flow is a completed payment.
type Verifier interface {
	Verify(ctx context.Context, ref string) (*Payment, error)
}

type paymentResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type GatewayClient struct {
	http *resty.Client
	cb   *gobreaker.CircuitBreaker[*Payment]
}

func NewGatewayClient(cfg config.PaymentConfig) *GatewayClient {
	client := resty.New().
		SetBaseURL(cfg.GatewayURL).
		SetBasicAuth(cfg.KeyID, cfg.KeySecret).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	cb := gobreaker.NewCircuitBreaker[*Payment](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// a declined payment is a valid answer from a healthy gateway
			return err == nil || errors.Is(err, ErrPaymentCancelled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("payment: circuit breaker state changed")
		},
	})

	return &GatewayClient{http: client, cb: cb}
}

func (c *GatewayClient) Verify(ctx context.Context, ref string) (*Payment, error) {
	p, err := c.cb.Execute(func() (*Payment, error) {
		return c.fetch(ctx, ref)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return nil, err
	}
	return p, nil
}

func (c *GatewayClient) fetch(ctx context.Context, ref string) (*Payment, error) {
	var body paymentResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", ref).
		SetResult(&body).
		Get("/v1/payments/{id}")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		log.Warn().Str("payment_ref", ref).Msg("payment: unknown payment reference")
		return nil, ErrPaymentCancelled
	case resp.StatusCode() >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: gateway returned %d", ErrGatewayUnavailable, resp.StatusCode())
	case resp.IsError():
		return nil, fmt.Errorf("payment: gateway rejected lookup of %s with status %d", ref, resp.StatusCode())
	}

	switch body.Status {
	case "captured", "authorized":
	default:
		log.Warn().Str("payment_ref", ref).Str("status", body.Status).Msg("payment: payment not completed")
		return nil, ErrPaymentCancelled
	}

	return &Payment{
		Ref:      body.ID,
		Amount:   decimal.New(body.Amount, -2),
		Currency: body.Currency,
		Status:   body.Status,
	}, nil
}

// AcceptingVerifier trusts every non-empty reference. Development only.
type AcceptingVerifier struct{}

func (AcceptingVerifier) Verify(_ context.Context, ref string) (*Payment, error) {
	if ref == "" {
		return nil, ErrPaymentCancelled
	}
	return &Payment{Ref: ref, Status: "captured"}, nil
}
