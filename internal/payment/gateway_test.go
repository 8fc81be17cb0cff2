package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/storefront/internal/config"
	"github.com/vasiliy-maslov/storefront/internal/payment"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *payment.GatewayClient {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return payment.NewGatewayClient(config.PaymentConfig{
		GatewayURL: srv.URL,
		KeyID:      "key",
		KeySecret:  "secret",
		Timeout:    time.Second,
	})
}

func TestGatewayClient_Verify(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       map[string]any
		wantErrIs  error
		wantAmount string
	}{
		{
			name:       "captured",
			status:     http.StatusOK,
			body:       map[string]any{"id": "pay_1", "amount": 2500, "currency": "INR", "status": "captured"},
			wantAmount: "25.00",
		},
		{
			name:       "authorized",
			status:     http.StatusOK,
			body:       map[string]any{"id": "pay_1", "amount": 199, "currency": "INR", "status": "authorized"},
			wantAmount: "1.99",
		},
		{
			name:      "failed_payment",
			status:    http.StatusOK,
			body:      map[string]any{"id": "pay_1", "amount": 2500, "status": "failed"},
			wantErrIs: payment.ErrPaymentCancelled,
		},
		{
			name:      "unknown_reference",
			status:    http.StatusNotFound,
			body:      map[string]any{"error": "not found"},
			wantErrIs: payment.ErrPaymentCancelled,
		},
		{
			name:      "gateway_down",
			status:    http.StatusBadGateway,
			body:      map[string]any{"error": "upstream"},
			wantErrIs: payment.ErrGatewayUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
				user, pass, ok := r.BasicAuth()
				assert.True(t, ok)
				assert.Equal(t, "key", user)
				assert.Equal(t, "secret", pass)
				assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/payments/pay_1"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.body)
			})

			p, err := gw.Verify(context.Background(), "pay_1")
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.wantAmount).Equal(p.Amount))
		})
	}
}

func TestGatewayClient_BreakerOpensOnRepeatedFailures(t *testing.T) {
	var calls int32
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 5; i++ {
		_, err := gw.Verify(context.Background(), "pay_1")
		require.ErrorIs(t, err, payment.ErrGatewayUnavailable)
	}
	require.Equal(t, int32(5), atomic.LoadInt32(&calls))

	_, err := gw.Verify(context.Background(), "pay_1")
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls), "open breaker must not reach the gateway")
}

func TestGatewayClient_DeclinesDoNotTripBreaker(t *testing.T) {
	var calls int32
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pay_1","amount":100,"status":"failed"}`))
	})

	for i := 0; i < 8; i++ {
		_, err := gw.Verify(context.Background(), "pay_1")
		require.ErrorIs(t, err, payment.ErrPaymentCancelled)
	}
	assert.Equal(t, int32(8), atomic.LoadInt32(&calls))
}

func TestAcceptingVerifier(t *testing.T) {
	v := payment.AcceptingVerifier{}

	_, err := v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, payment.ErrPaymentCancelled)

	p, err := v.Verify(context.Background(), "pay_dev")
	require.NoError(t, err)
	assert.Equal(t, "pay_dev", p.Ref)
	assert.True(t, p.Amount.IsZero())
}
