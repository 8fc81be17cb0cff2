package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/storefront/internal/checkout"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

type CheckoutRequest struct {
	UserID          string `json:"user_id,omitempty"`
	ShippingAddress string `json:"shipping_address" validate:"required"`
	ContactNumber   string `json:"contact_number" validate:"required,len=10,numeric"`
	PaymentMethod   string `json:"payment_method" validate:"required,oneof=cod gateway"`
	PaymentID       string `json:"payment_id,omitempty" validate:"required_if=PaymentMethod gateway"`
}

type CheckoutResponse struct {
	Success     bool            `json:"success"`
	OrderID     uuid.UUID       `json:"order_id"`
	Status      order.Status    `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type OrderDetailsResponse struct {
	Order      order.Order  `json:"order"`
	OrderItems []order.Item `json:"order_items"`
	UserName   string       `json:"user_name"`
}

type UpdateStatusRequest struct {
	OrderID uuid.UUID    `json:"order_id" validate:"required"`
	Status  order.Status `json:"status" validate:"required"`
}

type UpdateStatusResponse struct {
	Success      bool           `json:"success"`
	Message      string         `json:"message"`
	Status       order.Status   `json:"status"`
	NextStatuses []order.Status `json:"next_statuses"`
}

type OrderHandler struct {
	orders   order.Service
	checkout checkout.Service
	validate *validator.Validate
}

func NewOrderHandler(orders order.Service, checkoutSvc checkout.Service) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		checkout: checkoutSvc,
		validate: newValidator(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/checkout", h.handleCheckout)
	router.Get("/orders/user", h.handleUserOrders)
	router.Get("/orders/details", h.handleOrderDetails)
}

// RegisterSellerRoutes expects router to enforce the seller role.
func (h *OrderHandler) RegisterSellerRoutes(router chi.Router) {
	router.Get("/orders/seller", h.handleSellerOrders)
	router.Get("/orders/seller-details", h.handleSellerOrderDetails)
	router.Put("/orders/update-status", h.handleUpdateStatus)
}

func (h *OrderHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if !decodeAndValidate(w, r, h.validate, &req) || !checkScope(w, s, "user_id", req.UserID) {
		return
	}

	res, err := h.checkout.PlaceOrder(r.Context(), s.UserID, checkout.Request{
		ShippingAddress: req.ShippingAddress,
		ContactNumber:   req.ContactNumber,
		PaymentMethod:   req.PaymentMethod,
		PaymentRef:      req.PaymentID,
	})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to place order")
		return
	}

	respondWithJSON(w, http.StatusCreated, CheckoutResponse{
		Success:     true,
		OrderID:     res.OrderID,
		Status:      res.Status,
		TotalAmount: res.TotalAmount,
	})
}

func (h *OrderHandler) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok || !checkScope(w, s, "user_id", r.URL.Query().Get("user_id")) {
		return
	}

	orders, err := h.orders.ListForUser(r.Context(), s.UserID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleOrderDetails(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	orderID, ok := queryUUID(w, r, "order_id")
	if !ok {
		return
	}

	o, err := h.orders.Details(r.Context(), s.UserID, orderID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load order")
		return
	}

	items := o.Items
	if items == nil {
		items = []order.Item{}
	}
	header := *o
	header.Items = nil

	respondWithJSON(w, http.StatusOK, OrderDetailsResponse{
		Order:      header,
		OrderItems: items,
		UserName:   o.BuyerName,
	})
}

func (h *OrderHandler) handleSellerOrders(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok || !checkScope(w, s, "seller_id", r.URL.Query().Get("seller_id")) {
		return
	}

	orders, err := h.orders.ListForSeller(r.Context(), s.UserID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load seller orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleSellerOrderDetails(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok || !checkScope(w, s, "seller_id", r.URL.Query().Get("seller_id")) {
		return
	}
	orderID, ok := queryUUID(w, r, "order_id")
	if !ok {
		return
	}

	view, err := h.orders.SellerDetails(r.Context(), s.UserID, orderID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load order")
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), s.UserID, req.OrderID, req.Status); err != nil {
		respondWithServiceError(w, r, err, "Failed to update order status")
		return
	}

	respondWithJSON(w, http.StatusOK, UpdateStatusResponse{
		Success:      true,
		Message:      "Order status updated",
		Status:       req.Status,
		NextStatuses: order.NextStatuses(req.Status),
	})
}
