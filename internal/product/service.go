package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ValidationError reports the first invalid field of a product input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid product %s: %s", e.Field, e.Reason)
}

type Input struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
	ImageURL    string
}

func (in Input) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return &ValidationError{Field: "name", Reason: "is required"}
	case strings.TrimSpace(in.Category) == "":
		return &ValidationError{Field: "category", Reason: "is required"}
	case in.Price.IsNegative():
		return &ValidationError{Field: "price", Reason: "cannot be negative"}
	case in.Stock < 0:
		return &ValidationError{Field: "stock", Reason: "cannot be negative"}
	}
	return nil
}

type Service interface {
	Create(ctx context.Context, sellerID uuid.UUID, input Input) (*Product, error)
	Update(ctx context.Context, sellerID, productID uuid.UUID, input Input) (*Product, error)
	Delete(ctx context.Context, sellerID, productID uuid.UUID) error
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]Product, error)
	ListShop(ctx context.Context, category string) ([]ShopProduct, error)
	Categories() []string
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Create(ctx context.Context, sellerID uuid.UUID, input Input) (*Product, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	p := fromInput(input)
	p.SellerID = sellerID

	if err := s.repo.Create(ctx, p); err != nil {
		log.Error().Err(err).Stringer("seller_id", sellerID).Msg("service: failed to create product")
		return nil, fmt.Errorf("service: failed to create product: %w", err)
	}

	log.Info().Stringer("product_id", p.ID).Stringer("seller_id", sellerID).Msg("service: product created")
	return p, nil
}

func (s *service) Update(ctx context.Context, sellerID, productID uuid.UUID, input Input) (*Product, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	p := fromInput(input)
	p.ID = productID
	p.SellerID = sellerID

	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn().Stringer("product_id", productID).Stringer("seller_id", sellerID).Msg("service: product not found or not owned by seller")
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("service: failed to update product: %w", err)
	}

	return p, nil
}

func (s *service) Delete(ctx context.Context, sellerID, productID uuid.UUID) error {
	if err := s.repo.Delete(ctx, sellerID, productID); err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn().Stringer("product_id", productID).Stringer("seller_id", sellerID).Msg("service: delete of missing or foreign product")
			return ErrNotFound
		}
		return fmt.Errorf("service: failed to delete product: %w", err)
	}

	log.Info().Stringer("product_id", productID).Stringer("seller_id", sellerID).Msg("service: product deleted")
	return nil
}

func (s *service) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]Product, error) {
	products, err := s.repo.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list seller products: %w", err)
	}
	return products, nil
}

func (s *service) ListShop(ctx context.Context, category string) ([]ShopProduct, error) {
	products, err := s.repo.ListShop(ctx, strings.TrimSpace(category))
	if err != nil {
		return nil, fmt.Errorf("service: failed to list shop products: %w", err)
	}
	return products, nil
}

func (s *service) Categories() []string {
	out := make([]string, len(SuggestedCategories))
	copy(out, SuggestedCategories)
	return out
}

func fromInput(in Input) *Product {
	return &Product{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price.Round(2),
		Stock:       in.Stock,
		Category:    strings.TrimSpace(in.Category),
		ImageURL:    strings.TrimSpace(in.ImageURL),
	}
}
