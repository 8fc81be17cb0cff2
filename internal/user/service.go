package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/vasiliy-maslov/storefront/internal/session"
)

const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidRole        = errors.New("role must be seller or customer")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

type TokenIssuer interface {
	Issue(userID uuid.UUID, name string, role session.Role) (string, error)
}

type SignupInput struct {
	Name     string
	Email    string
	Password string
	Role     session.Role
}

type LoginResult struct {
	User  *User
	Token string
}

type Service interface {
	Signup(ctx context.Context, input SignupInput) (*User, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, profile Profile) (*User, error)
}

type service struct {
	repo   Repository
	tokens TokenIssuer
}

func NewService(repo Repository, tokens TokenIssuer) Service {
	return &service{repo: repo, tokens: tokens}
}

func (s *service) Signup(ctx context.Context, input SignupInput) (*User, error) {
	if !input.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if len(input.Password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to hash password")
		return nil, fmt.Errorf("internal error hashing password: %w", err)
	}

	u := &User{
		Name:         strings.TrimSpace(input.Name),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: string(hash),
		Role:         input.Role,
	}

	id, err := s.repo.Create(ctx, u)
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		log.Error().Err(err).Msg("service: failed to create user in repository")
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	u.ID = id

	log.Info().Stringer("user_id", u.ID).Stringer("role", u.Role).Msg("service: user signed up")
	return u, nil
}

func (s *service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		log.Error().Err(err).Msg("service: failed to get user by email")
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		log.Warn().Stringer("user_id", u.ID).Msg("service: password mismatch on login")
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(u.ID, u.Name, u.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token for user '%s': %w", u.ID, err)
	}

	return &LoginResult{User: u, Token: token}, nil
}

func (s *service) GetProfile(ctx context.Context, userID uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to get user by id")
		return nil, fmt.Errorf("failed to get user by id '%s': %w", userID, err)
	}
	return u, nil
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, profile Profile) (*User, error) {
	profile.Name = strings.TrimSpace(profile.Name)
	profile.Address = strings.TrimSpace(profile.Address)
	profile.PhoneNumber = strings.TrimSpace(profile.PhoneNumber)

	u, err := s.repo.UpdateProfile(ctx, userID, profile)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to update profile")
		return nil, fmt.Errorf("failed to update profile for '%s': %w", userID, err)
	}
	return u, nil
}
