package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/vasiliy-maslov/storefront/internal/events"
)

var ErrInvalidQuantity = errors.New("quantity must be greater than zero")

const (
	cacheOpTimeout = 500 * time.Millisecond
	loadTimeout    = 5 * time.Second
)

type Service interface {
	AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*Item, error)
	SetQuantity(ctx context.Context, userID, itemID uuid.UUID, qty int) error
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error
	GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error)
	// Changed invalidates the cached cart lines and broadcasts cart-changed.
	// Callers that modify cart rows outside this service (checkout) must call
	// it after commit.
	Changed(ctx context.Context, userID uuid.UUID)
}

type service struct {
	repo      Repository
	cache     Cache
	publisher events.Publisher
	sfg       singleflight.Group
}

func NewService(repo Repository, cache Cache, publisher events.Publisher) Service {
	return &service{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
	}
}

func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*Item, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	item, err := s.repo.AddItem(ctx, userID, productID, qty)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrOutOfStock) {
			log.Warn().Err(err).Stringer("user_id", userID).Stringer("product_id", productID).Int("quantity", qty).Msg("service: add to cart rejected")
			return nil, err
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to add cart item")
		return nil, fmt.Errorf("service: failed to add cart item: %w", err)
	}

	s.Changed(ctx, userID)
	return item, nil
}

// SetQuantity clamps negative quantities to zero; zero removes the line.
func (s *service) SetQuantity(ctx context.Context, userID, itemID uuid.UUID, qty int) error {
	if qty < 0 {
		qty = 0
	}

	var err error
	if qty == 0 {
		err = s.repo.DeleteItem(ctx, userID, itemID)
		if errors.Is(err, ErrItemNotFound) {
			// already gone: removal is idempotent
			return nil
		}
	} else {
		err = s.repo.SetQuantity(ctx, userID, itemID, qty)
	}
	if err != nil {
		if errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrOutOfStock) {
			log.Warn().Err(err).Stringer("user_id", userID).Stringer("item_id", itemID).Int("quantity", qty).Msg("service: cart update rejected")
			return err
		}
		log.Error().Err(err).Stringer("item_id", itemID).Msg("service: failed to update cart item")
		return fmt.Errorf("service: failed to update cart item: %w", err)
	}

	s.Changed(ctx, userID)
	return nil
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	return s.SetQuantity(ctx, userID, itemID, 0)
}

// GetCart collapses concurrent misses for the same user into one load. The
// load runs detached from any single caller, so one caller giving up does not
// fail the others.
func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	ch := s.sfg.DoChan(userID.String(), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.load(loadCtx, userID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			log.Error().Err(res.Err).Stringer("user_id", userID).Msg("service: failed to get cart")
			return nil, res.Err
		}
		return res.Val.(*Cart), nil
	}
}

// load serves cart lines from the cache when present. Product data is always
// read from the repository.
func (s *service) load(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	lines, err := s.cache.Get(ctx, userID)
	if err == nil {
		return s.withProducts(ctx, userID, lines)
	}
	if !errors.Is(err, ErrCacheMiss) {
		log.Warn().Err(err).Stringer("user_id", userID).Msg("service: cart cache get failed")
	}

	// the version is read before the rows so a change committed in between
	// makes the fill below a no-op
	version, versionErr := s.cache.Version(ctx, userID)

	items, err := s.repo.GetItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load cart: %w", err)
	}

	if versionErr != nil {
		log.Warn().Err(versionErr).Stringer("user_id", userID).Msg("service: cart cache version failed")
		return newCart(userID, items), nil
	}

	err = s.cache.Set(ctx, userID, version, linesOf(items))
	if errors.Is(err, ErrStaleFill) {
		log.Debug().Stringer("user_id", userID).Msg("service: cart changed during load, fill skipped")
	} else if err != nil {
		log.Warn().Err(err).Stringer("user_id", userID).Msg("service: cart cache set failed")
	}

	return newCart(userID, items), nil
}

func (s *service) withProducts(ctx context.Context, userID uuid.UUID, lines []Line) (*Cart, error) {
	ids := make([]uuid.UUID, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	products, err := s.repo.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load cart products: %w", err)
	}

	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			// product deleted; its cart row went with it
			continue
		}
		items = append(items, Item{
			ID:        l.ID,
			UserID:    userID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Product:   p,
			CreatedAt: l.CreatedAt,
		})
	}
	return newCart(userID, items), nil
}

func (s *service) Changed(ctx context.Context, userID uuid.UUID) {
	invCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := s.cache.Invalidate(invCtx, userID); err != nil {
		log.Warn().Err(err).Stringer("user_id", userID).Msg("service: cart cache invalidate failed")
	}
	// later reads must not join a load that started before this change
	s.sfg.Forget(userID.String())

	s.publisher.PublishCartChanged(context.WithoutCancel(ctx), userID)
}
