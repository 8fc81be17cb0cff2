package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/outbox"
)

type Repository interface {
	// PlaceOrder converts the user's cart into an order. Nothing is written
	// unless every step succeeds.
	PlaceOrder(ctx context.Context, draft Draft) (*Result, error)
}

// one order per captured gateway payment
const paymentRefConstraint = "orders_payment_ref_key"

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

type cartLine struct {
	productID uuid.UUID
	sellerID  uuid.UUID
	name      string
	imageURL  string
	price     decimal.Decimal
	stock     int
	quantity  int
}

type placedItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	SellerID  uuid.UUID       `json:"seller_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type placedPayload struct {
	OrderID       uuid.UUID       `json:"order_id"`
	UserID        uuid.UUID       `json:"user_id"`
	Status        order.Status    `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Items         []placedItem    `json:"items"`
	PlacedAt      time.Time       `json:"placed_at"`
}

func (r *postgresRepository) PlaceOrder(ctx context.Context, draft Draft) (result *Result, err error) {
	orderID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate order ID: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Stringer("order_id_attempted", orderID).Msg("repository: panic during checkout, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id_attempted", orderID).Msg("repository: failed to rollback checkout after panic")
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id_attempted", orderID).Msg("repository: failed to rollback checkout")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			log.Error().Err(commitErr).Stringer("order_id", orderID).Msg("repository: failed to commit checkout")
			result = nil
			err = fmt.Errorf("repository: failed to commit checkout: %w", commitErr)
		}
	}()

	lines, err := lockCart(ctx, tx, draft.UserID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	total := decimal.Zero
	for _, l := range lines {
		if l.quantity > l.stock {
			return nil, &OutOfStockError{ProductID: l.productID, ProductName: l.name, Requested: l.quantity, Available: l.stock}
		}
		total = total.Add(l.price.Mul(decimal.NewFromInt(int64(l.quantity))))
	}
	if !draft.PaidAmount.IsZero() && !draft.PaidAmount.Equal(total) {
		return nil, fmt.Errorf("%w: paid %s, cart total %s", ErrPaymentMismatch, draft.PaidAmount.StringFixed(2), total.StringFixed(2))
	}

	status := draft.initialStatus()
	now := time.Now().UTC()

	var ref *string
	if draft.PaymentMethod == order.PaymentGateway {
		ref = &draft.PaymentRef
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, total_amount, shipping_address, contact_number, payment_method, payment_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, orderID, draft.UserID, total, draft.ShippingAddress, draft.ContactNumber, draft.PaymentMethod, ref, string(status), now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == paymentRefConstraint {
			return nil, fmt.Errorf("%w: %s", ErrPaymentReused, draft.PaymentRef)
		}
		return nil, fmt.Errorf("repository: failed to insert order: %w", err)
	}

	payloadItems := make([]placedItem, 0, len(lines))
	for _, l := range lines {
		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			err = fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
			return nil, err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, seller_id, product_name, product_image, unit_price, quantity, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, itemID, orderID, l.productID, l.sellerID, l.name, l.imageURL, l.price, l.quantity, now)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to insert order item for order %s: %w", orderID, err)
		}

		_, err = tx.Exec(ctx, `UPDATE products SET stock = stock - $1, updated_at = $2 WHERE id = $3`, l.quantity, now, l.productID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
				return nil, &OutOfStockError{ProductID: l.productID, ProductName: l.name, Requested: l.quantity, Available: l.stock}
			}
			return nil, fmt.Errorf("repository: failed to decrement stock of product %s: %w", l.productID, err)
		}

		payloadItems = append(payloadItems, placedItem{ProductID: l.productID, SellerID: l.sellerID, Quantity: l.quantity, UnitPrice: l.price})
	}

	if _, err = tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, draft.UserID); err != nil {
		return nil, fmt.Errorf("repository: failed to clear cart: %w", err)
	}

	err = outbox.Append(ctx, tx, orderID, outbox.EventOrderPlaced, placedPayload{
		OrderID:       orderID,
		UserID:        draft.UserID,
		Status:        status,
		PaymentMethod: draft.PaymentMethod,
		TotalAmount:   total,
		Items:         payloadItems,
		PlacedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	return &Result{OrderID: orderID, Status: status, TotalAmount: total}, nil
}

// lockCart reads the cart lines with their products and holds row locks on
// both until the transaction ends. Products are locked in id order so two
// checkouts sharing products cannot deadlock.
func lockCart(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]cartLine, error) {
	rows, err := tx.Query(ctx, `
		SELECT c.product_id, p.seller_id, p.name, p.image_url, p.price, p.stock, c.quantity
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY p.id
		FOR UPDATE OF c, p
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to lock cart of user %s: %w", userID, err)
	}
	defer rows.Close()

	var lines []cartLine
	for rows.Next() {
		var l cartLine
		if err := rows.Scan(&l.productID, &l.sellerID, &l.name, &l.imageURL, &l.price, &l.stock, &l.quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating cart lines: %w", err)
	}

	return lines, nil
}
