package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/storefront/internal/product"
)

type ProductRequest struct {
	ID          uuid.UUID       `json:"id"`
	SellerID    string          `json:"seller_id,omitempty"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"gte=0"`
	Category    string          `json:"category" validate:"required"`
	ImageURL    string          `json:"image_url"`
}

func (req ProductRequest) input() product.Input {
	return product.Input{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
	}
}

type ShopResponse struct {
	Success  bool                  `json:"success"`
	Products []product.ShopProduct `json:"products"`
}

type ProductHandler struct {
	service  product.Service
	validate *validator.Validate
}

func NewProductHandler(service product.Service) *ProductHandler {
	return &ProductHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *ProductHandler) RegisterPublicRoutes(router chi.Router) {
	router.Get("/shop/products", h.handleShopProducts)
	router.Get("/shop/categories", h.handleCategories)
}

// RegisterSellerRoutes expects router to enforce the seller role.
func (h *ProductHandler) RegisterSellerRoutes(router chi.Router) {
	router.Get("/products/seller", h.handleSellerProducts)
	router.Post("/products/create", h.handleCreate)
	router.Put("/products/update", h.handleUpdate)
	router.Delete("/products/delete", h.handleDelete)
}

func (h *ProductHandler) handleShopProducts(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))

	products, err := h.service.ListShop(r.Context(), category)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load products")
		return
	}

	respondWithJSON(w, http.StatusOK, ShopResponse{Success: true, Products: products})
}

func (h *ProductHandler) handleCategories(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, h.service.Categories())
}

func (h *ProductHandler) handleSellerProducts(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok || !checkScope(w, s, "seller_id", r.URL.Query().Get("seller_id")) {
		return
	}

	products, err := h.service.ListBySeller(r.Context(), s.UserID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load products")
		return
	}

	respondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req ProductRequest
	if !decodeAndValidate(w, r, h.validate, &req) || !checkScope(w, s, "seller_id", req.SellerID) {
		return
	}

	created, err := h.service.Create(r.Context(), s.UserID, req.input())
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to create product")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *ProductHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req ProductRequest
	if !decodeAndValidate(w, r, h.validate, &req) || !checkScope(w, s, "seller_id", req.SellerID) {
		return
	}
	if req.ID == uuid.Nil {
		respondWithError(w, http.StatusBadRequest, CodeValidationFailed, "id is required")
		return
	}

	updated, err := h.service.Update(r.Context(), s.UserID, req.ID, req.input())
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update product")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *ProductHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok || !checkScope(w, s, "seller_id", r.URL.Query().Get("seller_id")) {
		return
	}
	productID, ok := queryUUID(w, r, "product_id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), s.UserID, productID); err != nil {
		respondWithServiceError(w, r, err, "Failed to delete product")
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Product deleted successfully"})
}
