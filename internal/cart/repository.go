package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrItemNotFound    = errors.New("cart item not found")
	ErrProductNotFound = errors.New("product not found")
	ErrOutOfStock      = errors.New("not enough stock")
)

type Repository interface {
	AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*Item, error)
	SetQuantity(ctx context.Context, userID, itemID uuid.UUID, qty int) error
	DeleteItem(ctx context.Context, userID, itemID uuid.UUID) error
	GetItems(ctx context.Context, userID uuid.UUID) ([]Item, error)
	// GetProducts returns the current state of the given products. Unknown ids
	// are absent from the map.
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ProductSnapshot, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

// AddItem inserts or increments the (user, product) line in one statement.
// The stock bound is part of the statement, so concurrent adds cannot push the
// line above the product stock.
func (r *postgresRepository) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*Item, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate cart item ID: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO cart_items (id, user_id, product_id, quantity, created_at, updated_at)
		SELECT $1, $2, p.id, $4, $5, $5
		FROM products p
		WHERE p.id = $3 AND p.stock >= $4
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
		WHERE cart_items.quantity + EXCLUDED.quantity <= (SELECT stock FROM products WHERE id = EXCLUDED.product_id)
		RETURNING id, quantity, created_at
	`

	item := Item{UserID: userID, ProductID: productID}
	err = r.db.QueryRow(ctx, query, id, userID, productID, qty, now).Scan(&item.ID, &item.Quantity, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.explainRejectedWrite(ctx, productID)
		}
		return nil, fmt.Errorf("repository: failed to upsert cart item: %w", err)
	}

	return &item, nil
}

func (r *postgresRepository) SetQuantity(ctx context.Context, userID, itemID uuid.UUID, qty int) error {
	query := `
		UPDATE cart_items c
		SET quantity = $1, updated_at = $2
		FROM products p
		WHERE c.id = $3 AND c.user_id = $4 AND p.id = c.product_id AND p.stock >= $1
	`
	cmdTag, err := r.db.Exec(ctx, query, qty, time.Now().UTC(), itemID, userID)
	if err != nil {
		return fmt.Errorf("repository: failed to update cart item %s: %w", itemID, err)
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	var productID uuid.UUID
	err = r.db.QueryRow(ctx, `SELECT product_id FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID).Scan(&productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrItemNotFound
		}
		return fmt.Errorf("repository: failed to look up cart item %s: %w", itemID, err)
	}
	return ErrOutOfStock
}

func (r *postgresRepository) DeleteItem(ctx context.Context, userID, itemID uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete cart item %s: %w", itemID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *postgresRepository) GetItems(ctx context.Context, userID uuid.UUID) ([]Item, error) {
	query := `
		SELECT c.id, c.user_id, c.product_id, c.quantity, c.created_at,
		       p.id, p.name, p.price, p.image_url, p.stock
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.created_at, c.id
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart for user %s: %w", userID, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.ProductID,
			&item.Quantity,
			&item.CreatedAt,
			&item.Product.ID,
			&item.Product.Name,
			&item.Product.Price,
			&item.Product.ImageURL,
			&item.Product.Stock,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart item for user %s: %w", userID, err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating cart for user %s: %w", userID, err)
	}

	return items, nil
}

func (r *postgresRepository) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ProductSnapshot, error) {
	products := make(map[uuid.UUID]ProductSnapshot, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, name, price, image_url, stock
		FROM products
		WHERE id = ANY($1::text[]::uuid[])
	`, keys)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p ProductSnapshot
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.ImageURL, &p.Stock); err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart product: %w", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating cart products: %w", err)
	}

	return products, nil
}

func (r *postgresRepository) explainRejectedWrite(ctx context.Context, productID uuid.UUID) error {
	var stock int
	err := r.db.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		return fmt.Errorf("repository: failed to look up product %s: %w", productID, err)
	}
	return ErrOutOfStock
}
