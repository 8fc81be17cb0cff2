package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"

	"github.com/vasiliy-maslov/storefront/internal/session"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

type SignupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=customer seller"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileRequest struct {
	Name        string `json:"name" validate:"required"`
	Address     string `json:"address"`
	PhoneNumber string `json:"phone_number"`
}

type UserResponse struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Role        session.Role `json:"role"`
	Address     string       `json:"address"`
	PhoneNumber string       `json:"phone_number"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type LoginResponse struct {
	ID    uuid.UUID    `json:"id"`
	Name  string       `json:"name"`
	Email string       `json:"email"`
	Role  session.Role `json:"role"`
	Token string       `json:"token"`
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		Address:     u.Address,
		PhoneNumber: u.PhoneNumber,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

type UserHandler struct {
	service  user.Service
	validate *validator.Validate
}

func NewUserHandler(service user.Service) *UserHandler {
	return &UserHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *UserHandler) RegisterPublicRoutes(router chi.Router) {
	router.Post("/signup", h.handleSignup)
	router.Post("/login", h.handleLogin)
}

func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Get("/profile", h.handleGetProfile)
	router.Put("/profile/update", h.handleUpdateProfile)
}

func (h *UserHandler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	created, err := h.service.Signup(r.Context(), user.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     session.Role(req.Role),
	})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to create user")
		return
	}

	respondWithJSON(w, http.StatusCreated, toUserResponse(created))
}

func (h *UserHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to log in")
		return
	}

	respondWithJSON(w, http.StatusOK, LoginResponse{
		ID:    res.User.ID,
		Name:  res.User.Name,
		Email: res.User.Email,
		Role:  res.User.Role,
		Token: res.Token,
	})
}

func (h *UserHandler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok || !checkScope(w, s, "user_id", r.URL.Query().Get("user_id")) {
		return
	}

	u, err := h.service.GetProfile(r.Context(), s.UserID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to get profile")
		return
	}

	respondWithJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *UserHandler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), s.UserID, user.Profile{
		Name:        req.Name,
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update profile")
		return
	}

	respondWithJSON(w, http.StatusOK, toUserResponse(u))
}
