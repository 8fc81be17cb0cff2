package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
)

// CartNotifier is told after commit that the user's cart was emptied.
type CartNotifier interface {
	Changed(ctx context.Context, userID uuid.UUID)
}

type Service interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, req Request) (*Result, error)
}

type service struct {
	repo     Repository
	payments payment.Verifier
	cart     CartNotifier
}

func NewService(repo Repository, payments payment.Verifier, cart CartNotifier) Service {
	return &service{
		repo:     repo,
		payments: payments,
		cart:     cart,
	}
}

func (s *service) PlaceOrder(ctx context.Context, userID uuid.UUID, req Request) (*Result, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		log.Warn().Err(err).Stringer("user_id", userID).Msg("service: checkout request rejected")
		return nil, err
	}

	draft := Draft{
		UserID:          userID,
		ShippingAddress: req.ShippingAddress,
		ContactNumber:   req.ContactNumber,
		PaymentMethod:   req.PaymentMethod,
	}

	if req.PaymentMethod == order.PaymentGateway {
		p, err := s.payments.Verify(ctx, req.PaymentRef)
		if err != nil {
			if errors.Is(err, payment.ErrPaymentCancelled) {
				log.Warn().Stringer("user_id", userID).Str("payment_ref", req.PaymentRef).Msg("service: payment not completed, cart kept")
				return nil, err
			}
			log.Error().Err(err).Stringer("user_id", userID).Str("payment_ref", req.PaymentRef).Msg("service: failed to verify payment")
			return nil, fmt.Errorf("service: failed to verify payment: %w", err)
		}
		draft.PaymentRef = req.PaymentRef
		draft.PaidAmount = p.Amount
	}

	res, err := s.repo.PlaceOrder(ctx, draft)
	if err != nil {
		if errors.Is(err, ErrEmptyCart) || errors.Is(err, ErrOutOfStock) || errors.Is(err, ErrPaymentMismatch) || errors.Is(err, ErrPaymentReused) {
			log.Warn().Err(err).Stringer("user_id", userID).Msg("service: checkout rejected")
			return nil, err
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to place order")
		return nil, fmt.Errorf("service: failed to place order: %w", err)
	}

	s.cart.Changed(ctx, userID)

	log.Info().
		Stringer("order_id", res.OrderID).
		Stringer("user_id", userID).
		Stringer("status", res.Status).
		Str("total", res.TotalAmount.StringFixed(2)).
		Msg("service: order placed")
	return res, nil
}
