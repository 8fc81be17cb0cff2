package user

import (
	"time"

	"github.com/gofrs/uuid"

	"github.com/vasiliy-maslov/storefront/internal/session"
)

// User представляет покупателя или продавца.
type User struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	Email        string       `json:"email" db:"email"`
	PasswordHash string       `json:"-" db:"password_hash"`
	Role         session.Role `json:"role" db:"role"`
	Address      string       `json:"address" db:"address"`
	PhoneNumber  string       `json:"phone_number" db:"phone_number"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// Profile holds the fields a user may edit about themselves.
type Profile struct {
	Name        string
	Address     string
	PhoneNumber string
}
