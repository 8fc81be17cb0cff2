package cart_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/db/dbtest"
	"github.com/vasiliy-maslov/storefront/internal/product"
	"github.com/vasiliy-maslov/storefront/internal/session"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

func TestPostgresCartRepository(t *testing.T) {
	pg := dbtest.Start(t, "../../migrations")
	ctx := context.Background()

	users := user.NewRepository(pg.Pool)
	seller, err := users.Create(ctx, &user.User{Name: "Seller", Email: "seller@example.com", PasswordHash: "x", Role: session.RoleSeller})
	require.NoError(t, err)
	buyer, err := users.Create(ctx, &user.User{Name: "Buyer", Email: "buyer@example.com", PasswordHash: "x", Role: session.RoleCustomer})
	require.NoError(t, err)

	products := product.NewRepository(pg.Pool, pg.SQLX())
	lamp := &product.Product{SellerID: seller, Name: "Lamp", Price: decimal.RequireFromString("10.00"), Stock: 5, Category: "Other"}
	require.NoError(t, products.Create(ctx, lamp))

	repo := cart.NewRepository(pg.Pool)
	_, err = repo.AddItem(ctx, buyer, lamp.ID, 2)
	require.NoError(t, err)

	t.Run("get_products_reads_current_rows", func(t *testing.T) {
		lamp.Price = decimal.RequireFromString("12.00")
		require.NoError(t, products.Update(ctx, lamp))

		got, err := repo.GetProducts(ctx, []uuid.UUID{lamp.ID, uuid.Must(uuid.NewV4())})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "12.00", got[lamp.ID].Price.StringFixed(2))
		assert.Equal(t, 5, got[lamp.ID].Stock)

		items, err := repo.GetItems(ctx, buyer)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "24.00", cart.Total(items).StringFixed(2))
	})

	t.Run("get_products_empty", func(t *testing.T) {
		got, err := repo.GetProducts(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
