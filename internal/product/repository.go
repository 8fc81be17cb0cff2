package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("product not found")

type Repository interface {
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, sellerID, productID uuid.UUID) error
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]Product, error)
	ListShop(ctx context.Context, category string) ([]ShopProduct, error)
}

type postgresRepository struct {
	db      *pgxpool.Pool
	catalog *sqlx.DB
}

// NewRepository uses the pool for writes and seller queries, and the sqlx
// handle for the public catalog read model.
func NewRepository(db *pgxpool.Pool, catalog *sqlx.DB) Repository {
	return &postgresRepository{db: db, catalog: catalog}
}

const productColumns = `id, seller_id, name, description, price, stock, category, image_url, created_at, updated_at`

func (r *postgresRepository) Create(ctx context.Context, p *Product) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate product ID: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO products (id, seller_id, name, description, price, stock, category, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`
	_, err = r.db.Exec(ctx, query, id, p.SellerID, p.Name, p.Description, p.Price, p.Stock, p.Category, p.ImageURL, now)
	if err != nil {
		return fmt.Errorf("repository: failed to insert product: %w", err)
	}

	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (r *postgresRepository) Update(ctx context.Context, p *Product) error {
	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, stock = $4, category = $5, image_url = $6, updated_at = $7
		WHERE id = $8 AND seller_id = $9
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		p.Name,
		p.Description,
		p.Price,
		p.Stock,
		p.Category,
		p.ImageURL,
		time.Now().UTC(),
		p.ID,
		p.SellerID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("repository: failed to update product %s: %w", p.ID, err)
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, sellerID, productID uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1 AND seller_id = $2`, productID, sellerID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete product %s: %w", productID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE seller_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, sellerID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query products for seller %s: %w", sellerID, err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		err := rows.Scan(
			&p.ID,
			&p.SellerID,
			&p.Name,
			&p.Description,
			&p.Price,
			&p.Stock,
			&p.Category,
			&p.ImageURL,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan product for seller %s: %w", sellerID, err)
		}
		products = append(products, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating products for seller %s: %w", sellerID, err)
	}

	return products, nil
}

func (r *postgresRepository) ListShop(ctx context.Context, category string) ([]ShopProduct, error) {
	query := `
		SELECT p.id, p.seller_id, p.name, p.description, p.price, p.stock, p.category, p.image_url,
		       p.created_at, p.updated_at, COALESCE(u.name, 'Unknown Seller') AS seller_name
		FROM products p
		LEFT JOIN users u ON u.id = p.seller_id
		WHERE ($1::text = '' OR p.category = $1)
		ORDER BY p.created_at DESC
	`

	products := make([]ShopProduct, 0)
	if err := r.catalog.SelectContext(ctx, &products, query, category); err != nil {
		return nil, fmt.Errorf("repository: failed to list shop products: %w", err)
	}
	return products, nil
}
