package user_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/storefront/internal/db/dbtest"
	"github.com/vasiliy-maslov/storefront/internal/session"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

func TestPostgresUserRepository(t *testing.T) {
	pg := dbtest.Start(t, "../../migrations")
	repo := user.NewRepository(pg.Pool)
	ctx := context.Background()

	newUser := &user.User{
		Name:         "Asha",
		Email:        "asha@example.com",
		PasswordHash: "hash",
		Role:         session.RoleSeller,
	}
	id, err := repo.Create(ctx, newUser)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	t.Run("get_by_id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Asha", got.Name)
		assert.Equal(t, session.RoleSeller, got.Role)
		assert.Equal(t, "hash", got.PasswordHash)
	})

	t.Run("get_by_email_case_insensitive", func(t *testing.T) {
		got, err := repo.GetByEmail(ctx, "ASHA@example.com")
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
	})

	t.Run("duplicate_email", func(t *testing.T) {
		_, err := repo.Create(ctx, &user.User{Name: "Other", Email: "asha@example.com", PasswordHash: "x", Role: session.RoleCustomer})
		assert.ErrorIs(t, err, user.ErrEmailExists)
	})

	t.Run("update_profile_keeps_email_and_role", func(t *testing.T) {
		got, err := repo.UpdateProfile(ctx, id, user.Profile{Name: "Asha K", Address: "12 MG Road", PhoneNumber: "9876543210"})
		require.NoError(t, err)
		assert.Equal(t, "Asha K", got.Name)
		assert.Equal(t, "12 MG Road", got.Address)
		assert.Equal(t, "asha@example.com", got.Email)
		assert.Equal(t, session.RoleSeller, got.Role)
	})

	t.Run("not_found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.Must(uuid.NewV4()))
		assert.ErrorIs(t, err, user.ErrNotFound)

		_, err = repo.UpdateProfile(ctx, uuid.Must(uuid.NewV4()), user.Profile{Name: "x"})
		assert.ErrorIs(t, err, user.ErrNotFound)
	})
}
