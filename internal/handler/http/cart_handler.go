package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/events"
)

const sseHeartbeat = 25 * time.Second

type AddToCartRequest struct {
	UserID    string    `json:"user_id,omitempty"`
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity"`
}

type UpdateCartRequest struct {
	ID       uuid.UUID `json:"id" validate:"required"`
	Quantity int       `json:"quantity"`
}

type CartHandler struct {
	service    cart.Service
	subscriber events.Subscriber
	validate   *validator.Validate
	heartbeat  time.Duration
}

func NewCartHandler(service cart.Service, subscriber events.Subscriber) *CartHandler {
	return &CartHandler{
		service:    service,
		subscriber: subscriber,
		validate:   newValidator(),
		heartbeat:  sseHeartbeat,
	}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Get("/cart", h.handleGetCart)
	router.Post("/cart/add", h.handleAdd)
	router.Put("/cart/update", h.handleUpdate)
	router.Delete("/cart/delete", h.handleDelete)
}

// RegisterStreamRoutes holds long-lived routes that must not sit behind the request timeout.
func (h *CartHandler) RegisterStreamRoutes(router chi.Router) {
	router.Get("/cart/events", h.handleEvents)
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok || !checkScope(w, s, "user_id", r.URL.Query().Get("user_id")) {
		return
	}

	c, err := h.service.GetCart(r.Context(), s.UserID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load cart")
		return
	}

	respondWithJSON(w, http.StatusOK, c)
}

func (h *CartHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req AddToCartRequest
	if !decodeAndValidate(w, r, h.validate, &req) || !checkScope(w, s, "user_id", req.UserID) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item, err := h.service.AddItem(r.Context(), s.UserID, req.ProductID, req.Quantity)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to add to cart")
		return
	}

	respondWithJSON(w, http.StatusOK, item)
}

func (h *CartHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req UpdateCartRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	if err := h.service.SetQuantity(r.Context(), s.UserID, req.ID, req.Quantity); err != nil {
		respondWithServiceError(w, r, err, "Failed to update cart")
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Cart updated"})
}

func (h *CartHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	itemID, ok := queryUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.RemoveItem(r.Context(), s.UserID, itemID); err != nil {
		respondWithServiceError(w, r, err, "Failed to remove cart item")
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Item removed"})
}

// handleEvents streams cart-changed notifications for the caller as
// server-sent events until the client goes away.
func (h *CartHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, CodeBackendError, "Streaming unsupported")
		return
	}

	ch, cancel := h.subscriber.Subscribe(s.UserID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Error().Err(err).Msg("Failed to marshal cart event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: cart-changed\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
