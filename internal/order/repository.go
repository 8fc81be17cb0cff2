package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront/internal/outbox"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrStatusConflict = errors.New("order status was changed concurrently")
)

type Repository interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*Order, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]Order, error)
	// GetForSeller loads the order with only the seller's lines.
	GetForSeller(ctx context.Context, sellerID, orderID uuid.UUID) (*Order, error)
	// SellerOrderStatus fails with ErrOrderNotFound unless the seller has a line in the order.
	SellerOrderStatus(ctx context.Context, sellerID, orderID uuid.UUID) (Status, error)
	// UpdateStatus moves the order from -> to only if it is still in from.
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to Status, changedBy uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `o.id, o.user_id, COALESCE(u.name, ''), o.total_amount, o.status, o.payment_method,
		o.payment_ref, o.shipping_address, o.contact_number, o.created_at, o.updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o   Order
		ref *string
	)
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.BuyerName,
		&o.TotalAmount,
		&o.Status,
		&o.PaymentMethod,
		&ref,
		&o.ShippingAddress,
		&o.ContactNumber,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ref != nil {
		o.PaymentRef = *ref
	}
	return &o, nil
}

func (r *postgresRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC
	`
	return r.listWithItems(ctx, query, userID, uuid.NullUUID{})
}

func (r *postgresRepository) ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		WHERE EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.seller_id = $1)
		ORDER BY o.created_at DESC
	`
	return r.listWithItems(ctx, query, sellerID, uuid.NullUUID{UUID: sellerID, Valid: true})
}

// listWithItems runs an order query keyed by one id and attaches the lines,
// restricted to onlySeller when it is set.
func (r *postgresRepository) listWithItems(ctx context.Context, query string, key uuid.UUID, onlySeller uuid.NullUUID) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for %s: %w", key, err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	var orderIDs []uuid.UUID
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order for %s: %w", key, err)
		}
		orders = append(orders, *o)
		orderIDs = append(orderIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders for %s: %w", key, err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	items, err := r.loadItems(ctx, orderIDs, onlySeller)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, nil
}

func (r *postgresRepository) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		WHERE o.id = $1 AND o.user_id = $2
	`
	o, err := scanOrder(r.db.QueryRow(ctx, query, orderID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s: %w", orderID, err)
	}

	items, err := r.loadItems(ctx, []uuid.UUID{orderID}, uuid.NullUUID{})
	if err != nil {
		return nil, err
	}
	o.Items = items[orderID]

	return o, nil
}

func (r *postgresRepository) GetForSeller(ctx context.Context, sellerID, orderID uuid.UUID) (*Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		LEFT JOIN users u ON u.id = o.user_id
		WHERE o.id = $1
	`
	o, err := scanOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s: %w", orderID, err)
	}

	items, err := r.loadItems(ctx, []uuid.UUID{orderID}, uuid.NullUUID{UUID: sellerID, Valid: true})
	if err != nil {
		return nil, err
	}
	if len(items[orderID]) == 0 {
		// the order exists but this seller has nothing in it
		return nil, ErrOrderNotFound
	}
	o.Items = items[orderID]

	return o, nil
}

func (r *postgresRepository) loadItems(ctx context.Context, orderIDs []uuid.UUID, onlySeller uuid.NullUUID) (map[uuid.UUID][]Item, error) {
	query := `
		SELECT id, order_id, product_id, seller_id, product_name, product_image, unit_price, quantity, created_at
		FROM order_items
		WHERE order_id = ANY($1) AND ($2::uuid IS NULL OR seller_id = $2)
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, orderIDs, onlySeller)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID][]Item, len(orderIDs))
	for rows.Next() {
		var it Item
		err := rows.Scan(
			&it.ID,
			&it.OrderID,
			&it.ProductID,
			&it.SellerID,
			&it.ProductName,
			&it.ProductImage,
			&it.UnitPrice,
			&it.Quantity,
			&it.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		items[it.OrderID] = append(items[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating order items: %w", err)
	}

	return items, nil
}

func (r *postgresRepository) SellerOrderStatus(ctx context.Context, sellerID, orderID uuid.UUID) (Status, error) {
	query := `
		SELECT o.status
		FROM orders o
		WHERE o.id = $1
		  AND EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.seller_id = $2)
	`
	var status Status
	if err := r.db.QueryRow(ctx, query, orderID, sellerID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOrderNotFound
		}
		return "", fmt.Errorf("repository: failed to read status of order %s: %w", orderID, err)
	}
	return status, nil
}

type statusChangedPayload struct {
	OrderID   uuid.UUID `json:"order_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ChangedBy uuid.UUID `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to Status, changedBy uuid.UUID) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Stringer("order_id", orderID).Msg("repository: failed to rollback status update")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit status update: %w", commitErr)
		}
	}()

	now := time.Now().UTC()
	cmdTag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), now, orderID, string(from),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update status of order %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrStatusConflict
	}

	return outbox.Append(ctx, tx, orderID, outbox.EventOrderStatusChanged, statusChangedPayload{
		OrderID:   orderID,
		From:      from,
		To:        to,
		ChangedBy: changedBy,
		ChangedAt: now,
	})
}
