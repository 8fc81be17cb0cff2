package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrUnknownStatus           = errors.New("unknown order status")
)

type Service interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	Details(ctx context.Context, userID, orderID uuid.UUID) (*Order, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]Order, error)
	SellerDetails(ctx context.Context, sellerID, orderID uuid.UUID) (*SellerView, error)
	UpdateStatus(ctx context.Context, sellerID, orderID uuid.UUID, target Status) error
}

type service struct {
	orderRepo Repository
}

func NewService(orderRepo Repository) Service {
	return &service{orderRepo: orderRepo}
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.orderRepo.ListForUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to fetch user orders")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}
	return orders, nil
}

func (s *service) Details(ctx context.Context, userID, orderID uuid.UUID) (*Order, error) {
	o, err := s.orderRepo.GetForUser(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", orderID).Stringer("user_id", userID).Msg("service: order not found for user")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch order")
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}
	return o, nil
}

func (s *service) ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]Order, error) {
	orders, err := s.orderRepo.ListForSeller(ctx, sellerID)
	if err != nil {
		log.Error().Err(err).Stringer("seller_id", sellerID).Msg("service: failed to fetch seller orders")
		return nil, fmt.Errorf("service: failed to fetch seller orders: %w", err)
	}
	return orders, nil
}

func (s *service) SellerDetails(ctx context.Context, sellerID, orderID uuid.UUID) (*SellerView, error) {
	o, err := s.orderRepo.GetForSeller(ctx, sellerID, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", orderID).Stringer("seller_id", sellerID).Msg("service: order not found for seller")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch seller order")
		return nil, fmt.Errorf("service: failed to fetch seller order: %w", err)
	}
	return NewSellerView(o, sellerID), nil
}

// UpdateStatus advances the shared order status on behalf of a seller that
// has at least one line in the order.
func (s *service) UpdateStatus(ctx context.Context, sellerID, orderID uuid.UUID, target Status) error {
	if !target.Valid() {
		log.Warn().Stringer("order_id", orderID).Str("status", string(target)).Msg("service: unknown target status")
		return fmt.Errorf("%w: %q", ErrUnknownStatus, target)
	}

	current, err := s.orderRepo.SellerOrderStatus(ctx, sellerID, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", orderID).Stringer("seller_id", sellerID).Msg("service: order not found, cannot update status")
			return ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to get order for status update")
		return fmt.Errorf("service: failed to get order for status update: %w", err)
	}

	if !CanTransition(current, target) {
		log.Warn().
			Stringer("order_id", orderID).
			Stringer("current_status", current).
			Stringer("new_status", target).
			Msg("service: invalid status transition attempt")
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current, target)
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, current, target, sellerID); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			log.Warn().Stringer("order_id", orderID).Stringer("expected_status", current).Msg("service: order status changed concurrently")
			return ErrStatusConflict
		}
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("new_status", target).Msg("service: failed to update order status")
		return fmt.Errorf("service: failed to update order status: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Stringer("old_status", current).Stringer("new_status", target).Msg("service: order status updated")
	return nil
}
