package session

import (
	"context"
	"errors"

	"github.com/gofrs/uuid"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleSeller
}

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrForbidden    = errors.New("forbidden")
)

// Session is the authenticated identity attached to a request.
type Session struct {
	UserID uuid.UUID
	Name   string
	Role   Role
	Token  string
}

func (s *Session) IsSeller() bool {
	return s != nil && s.Role == RoleSeller
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (*Session, error) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	if !ok || s == nil {
		return nil, ErrAuthRequired
	}
	return s, nil
}
