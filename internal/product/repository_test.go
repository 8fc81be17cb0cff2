package product_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/storefront/internal/db/dbtest"
	"github.com/vasiliy-maslov/storefront/internal/product"
	"github.com/vasiliy-maslov/storefront/internal/session"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

func TestPostgresProductRepository(t *testing.T) {
	pg := dbtest.Start(t, "../../migrations")
	ctx := context.Background()

	users := user.NewRepository(pg.Pool)
	sellerA, err := users.Create(ctx, &user.User{Name: "Seller A", Email: "a@example.com", PasswordHash: "x", Role: session.RoleSeller})
	require.NoError(t, err)
	sellerB, err := users.Create(ctx, &user.User{Name: "Seller B", Email: "b@example.com", PasswordHash: "x", Role: session.RoleSeller})
	require.NoError(t, err)

	repo := product.NewRepository(pg.Pool, pg.SQLX())

	lamp := &product.Product{SellerID: sellerA, Name: "Lamp", Price: decimal.RequireFromString("12.50"), Stock: 3, Category: "Home & Kitchen"}
	require.NoError(t, repo.Create(ctx, lamp))
	book := &product.Product{SellerID: sellerB, Name: "Go in Action", Price: decimal.RequireFromString("30"), Stock: 1, Category: "Books"}
	require.NoError(t, repo.Create(ctx, book))

	t.Run("list_by_seller", func(t *testing.T) {
		got, err := repo.ListBySeller(ctx, sellerA)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, lamp.ID, got[0].ID)
		assert.True(t, decimal.RequireFromString("12.50").Equal(got[0].Price))
	})

	t.Run("shop_listing_with_seller_name", func(t *testing.T) {
		all, err := repo.ListShop(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, book.ID, all[0].ID, "newest first")
		assert.Equal(t, "Seller B", all[0].SellerName)

		books, err := repo.ListShop(ctx, "Books")
		require.NoError(t, err)
		require.Len(t, books, 1)
		assert.Equal(t, "Go in Action", books[0].Name)
	})

	t.Run("foreign_update_and_delete_are_not_found", func(t *testing.T) {
		hijack := *lamp
		hijack.SellerID = sellerB
		hijack.Price = decimal.Zero
		assert.ErrorIs(t, repo.Update(ctx, &hijack), product.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, sellerB, lamp.ID), product.ErrNotFound)

		got, err := repo.ListBySeller(ctx, sellerA)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, decimal.RequireFromString("12.50").Equal(got[0].Price))
	})

	t.Run("owner_update_and_delete", func(t *testing.T) {
		lamp.Stock = 10
		require.NoError(t, repo.Update(ctx, lamp))
		got, err := repo.ListBySeller(ctx, sellerA)
		require.NoError(t, err)
		assert.Equal(t, 10, got[0].Stock)

		require.NoError(t, repo.Delete(ctx, sellerA, lamp.ID))
		assert.ErrorIs(t, repo.Delete(ctx, sellerA, lamp.ID), product.ErrNotFound)
	})

	t.Run("unknown_product", func(t *testing.T) {
		assert.ErrorIs(t, repo.Delete(ctx, sellerA, uuid.Must(uuid.NewV4())), product.ErrNotFound)
	})
}
