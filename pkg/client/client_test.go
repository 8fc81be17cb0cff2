package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/storefront/pkg/client"
)

// fakeAPI records calls per "METHOD path" and serves canned handlers.
type fakeAPI struct {
	mu       sync.Mutex
	calls    map[string]int
	bodies   map[string][]byte
	handlers map[string]http.HandlerFunc
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	api := &fakeAPI{calls: map[string]int{}, bodies: map[string][]byte{}, handlers: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		var raw json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&raw)

		api.mu.Lock()
		api.calls[key]++
		api.bodies[key] = raw
		h, ok := api.handlers[key]
		api.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no route", "code": "NOT_FOUND"})
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) handle(key string, h http.HandlerFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[key] = h
}

func (a *fakeAPI) count(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[key]
}

func (a *fakeAPI) body(key string) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bodies[key]
}

func (a *fakeAPI) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		n += c
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func signedIn(cfg client.Config) (*client.Client, *client.Session) {
	c := client.New(cfg)
	s := &client.Session{UserID: uuid.Must(uuid.NewV4()), Name: "Asha", Role: "customer", Token: "tok"}
	c.SetSession(s)
	return c, s
}

func TestClient_AuthRequiredWithoutSession(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := client.New(client.Config{BaseURL: srv.URL})

	_, err := c.GetCart(context.Background())
	assert.ErrorIs(t, err, client.ErrAuthRequired)
	_, err = c.AddItem(context.Background(), uuid.Must(uuid.NewV4()), 1)
	assert.ErrorIs(t, err, client.ErrAuthRequired)
	_, err = c.Orders(context.Background())
	assert.ErrorIs(t, err, client.ErrAuthRequired)

	assert.Zero(t, api.total())
}

func TestClient_LoginInstallsSession(t *testing.T) {
	api, srv := newFakeAPI(t)
	userID := uuid.Must(uuid.NewV4())
	api.handle("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id": userID, "name": "Asha", "email": "asha@example.com", "role": "seller", "token": "jwt-1",
		})
	})
	api.handle("GET /api/profile", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": userID, "name": "Asha"})
	})
	c := client.New(client.Config{BaseURL: srv.URL})

	s, err := c.Login(context.Background(), "asha@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, userID, s.UserID)
	assert.True(t, s.IsSeller())
	assert.Same(t, s, c.Session())

	u, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Asha", u.Name)
}

func TestClient_ErrorCodesMapToSentinels(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   error
	}{
		{http.StatusUnauthorized, "AUTH_REQUIRED", client.ErrAuthRequired},
		{http.StatusForbidden, "FORBIDDEN", client.ErrForbidden},
		{http.StatusBadRequest, "VALIDATION_FAILED", client.ErrValidation},
		{http.StatusNotFound, "NOT_FOUND", client.ErrNotFound},
		{http.StatusConflict, "INVALID_TRANSITION", client.ErrInvalidTransition},
		{http.StatusConflict, "CONFLICT", client.ErrConflict},
		{http.StatusPaymentRequired, "PAYMENT_CANCELLED", client.ErrPaymentCancelled},
		{http.StatusBadRequest, "EMPTY_CART", client.ErrEmptyCart},
		{http.StatusConflict, "OUT_OF_STOCK", client.ErrOutOfStock},
		{http.StatusInternalServerError, "BACKEND_ERROR", client.ErrBackend},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			api, srv := newFakeAPI(t)
			api.handle("PUT /api/orders/update-status", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]string{"error": "rejected", "code": tt.code})
			})
			c, _ := signedIn(client.Config{BaseURL: srv.URL})

			_, err := c.UpdateOrderStatus(context.Background(), uuid.Must(uuid.NewV4()), "", client.StatusShipped)

			require.ErrorIs(t, err, tt.want)
			var apiErr *client.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, "rejected", apiErr.Message)
		})
	}
}

func TestClient_NonTaxonomyErrorBody(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.handle("GET /api/orders/user", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("nope"))
	})
	c, _ := signedIn(client.Config{BaseURL: srv.URL})

	_, err := c.Orders(context.Background())

	assert.ErrorIs(t, err, client.ErrAuthRequired)
}

func TestClient_Timeout(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.handle("GET /api/cart", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	c, _ := signedIn(client.Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, RetryCount: -1})

	_, err := c.GetCart(context.Background())

	assert.ErrorIs(t, err, client.ErrNetworkTimeout)
	var apiErr *client.APIError
	assert.NotErrorAs(t, err, &apiErr)
}

func TestClient_RetriesIdempotentReadsOnly(t *testing.T) {
	t.Run("get_retried_on_503", func(t *testing.T) {
		api, srv := newFakeAPI(t)
		var n int32
		api.handle("GET /api/shop/categories", func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&n, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, http.StatusOK, []string{"Books"})
		})
		c := client.New(client.Config{BaseURL: srv.URL, RetryWait: time.Millisecond})

		got, err := c.Categories(context.Background())

		require.NoError(t, err)
		assert.Equal(t, []string{"Books"}, got)
		assert.Equal(t, 3, api.count("GET /api/shop/categories"))
	})

	t.Run("get_gives_up_after_two_retries", func(t *testing.T) {
		api, srv := newFakeAPI(t)
		api.handle("GET /api/shop/categories", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		c := client.New(client.Config{BaseURL: srv.URL, RetryWait: time.Millisecond})

		_, err := c.Categories(context.Background())

		assert.ErrorIs(t, err, client.ErrBackend)
		assert.Equal(t, 3, api.count("GET /api/shop/categories"))
	})

	t.Run("get_not_retried_on_500", func(t *testing.T) {
		api, srv := newFakeAPI(t)
		api.handle("GET /api/shop/categories", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom", "code": "BACKEND_ERROR"})
		})
		c := client.New(client.Config{BaseURL: srv.URL, RetryWait: time.Millisecond})

		_, err := c.Categories(context.Background())

		assert.ErrorIs(t, err, client.ErrBackend)
		assert.Equal(t, 1, api.count("GET /api/shop/categories"))
	})

	t.Run("post_never_retried", func(t *testing.T) {
		api, srv := newFakeAPI(t)
		api.handle("POST /api/cart/add", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		c, _ := signedIn(client.Config{BaseURL: srv.URL, RetryWait: time.Millisecond})

		_, err := c.AddItem(context.Background(), uuid.Must(uuid.NewV4()), 1)

		assert.Error(t, err)
		assert.Equal(t, 1, api.count("POST /api/cart/add"))
	})
}

func TestClient_CartMutationsBroadcast(t *testing.T) {
	api, srv := newFakeAPI(t)
	productID := uuid.Must(uuid.NewV4())
	itemID := uuid.Must(uuid.NewV4())
	api.handle("POST /api/cart/add", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": itemID, "product_id": productID, "quantity": 1})
	})
	api.handle("DELETE /api/cart/delete", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, itemID.String(), r.URL.Query().Get("id"))
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	})
	c, s := signedIn(client.Config{BaseURL: srv.URL})
	events, unsubscribe := c.Subscribe(s.UserID)
	defer unsubscribe()

	_, err := c.AddItem(context.Background(), productID, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"product_id":"`+productID.String()+`","quantity":1}`, string(api.body("POST /api/cart/add")))

	select {
	case ev := <-events:
		assert.Equal(t, s.UserID, ev.UserID)
	case <-time.After(time.Second):
		t.Fatal("no cart-changed after AddItem")
	}

	// zero quantity removes the line
	require.NoError(t, c.SetQuantity(context.Background(), itemID, 0))
	assert.Equal(t, 1, api.count("DELETE /api/cart/delete"))
	assert.Zero(t, api.count("PUT /api/cart/update"))

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("no cart-changed after removal")
	}
}

func TestClient_CartOrEmpty(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.handle("GET /api/cart", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "down", "code": "BACKEND_ERROR"})
	})
	c, s := signedIn(client.Config{BaseURL: srv.URL})

	_, err := c.GetCart(context.Background())
	require.ErrorIs(t, err, client.ErrBackend)

	got := c.CartOrEmpty(context.Background())
	assert.Equal(t, s.UserID, got.UserID)
	assert.Empty(t, got.Items)
	assert.True(t, got.Total.IsZero())
}

func TestTotal(t *testing.T) {
	tests := []struct {
		name  string
		items []client.CartItem
		want  string
	}{
		{name: "empty", items: nil, want: "0"},
		{
			name: "mixed",
			items: []client.CartItem{
				{Quantity: 2, Product: client.CartProduct{Price: decimal.RequireFromString("10.00")}},
				{Quantity: 1, Product: client.CartProduct{Price: decimal.RequireFromString("5.00")}},
			},
			want: "25.00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, decimal.RequireFromString(tt.want).Equal(client.Total(tt.items)))
		})
	}
}

func TestClient_UpdateOrderStatus_ChecksTransitionLocally(t *testing.T) {
	tests := []struct {
		name      string
		current   client.OrderStatus
		target    client.OrderStatus
		wantCalls int
		wantErrIs error
	}{
		{name: "pending_to_delivered", current: client.StatusPending, target: client.StatusDelivered, wantErrIs: client.ErrInvalidTransition},
		{name: "from_terminal", current: client.StatusCancelled, target: client.StatusProcessing, wantErrIs: client.ErrInvalidTransition},
		{name: "unknown_target", current: client.StatusShipped, target: "lost", wantErrIs: client.ErrInvalidTransition},
		{name: "allowed", current: client.StatusShipped, target: client.StatusDelivered, wantCalls: 1},
		{name: "current_unknown_defers_to_backend", current: "", target: client.StatusDelivered, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, srv := newFakeAPI(t)
			api.handle("PUT /api/orders/update-status", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"status":        tt.target,
					"next_statuses": client.NextStatuses(tt.target),
				})
			})
			c, _ := signedIn(client.Config{BaseURL: srv.URL})

			got, err := c.UpdateOrderStatus(context.Background(), uuid.Must(uuid.NewV4()), tt.current, tt.target)

			assert.Equal(t, tt.wantCalls, api.count("PUT /api/orders/update-status"))
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.target, got.Status)
		})
	}
}

func TestNextStatuses(t *testing.T) {
	assert.Equal(t, []client.OrderStatus{client.StatusDelivered, client.StatusCancelled}, client.NextStatuses(client.StatusShipped))
	assert.Equal(t, []client.OrderStatus{client.StatusProcessing, client.StatusCancelled}, client.NextStatuses(client.StatusPending))
	assert.Empty(t, client.NextStatuses(client.StatusDelivered))
	assert.Empty(t, client.NextStatuses(client.StatusCancelled))
}

func TestClient_WatchCart(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/cart/events" || r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(": connected\n\n"))
		flusher.Flush()
		_, _ = w.Write([]byte("event: cart-changed\ndata: {\"user_id\":\"" + userID.String() + "\"}\n\n"))
		flusher.Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	c := client.New(client.Config{BaseURL: srv.URL})
	c.SetSession(&client.Session{UserID: userID, Token: "tok"})
	events, unsubscribe := c.Subscribe(userID)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.WatchCart(ctx) }()

	select {
	case ev := <-events:
		assert.Equal(t, userID, ev.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("stream event not republished")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WatchCart did not stop on cancel")
	}
}
