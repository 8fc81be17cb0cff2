package client

import (
	"errors"
	"fmt"
)

// Sentinels of the storefront error taxonomy. A *APIError returned by any
// call matches exactly one of them with errors.Is.
var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("conflict")
	ErrPaymentCancelled  = errors.New("payment cancelled")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrOutOfStock        = errors.New("out of stock")
	ErrBackend           = errors.New("backend error")

	// ErrNetworkTimeout means no answer arrived in time. The request may be retried.
	ErrNetworkTimeout = errors.New("network timeout")

	ErrCheckoutInFlight = errors.New("checkout already in progress")
)

var codeSentinels = map[string]error{
	"AUTH_REQUIRED":      ErrAuthRequired,
	"FORBIDDEN":          ErrForbidden,
	"VALIDATION_FAILED":  ErrValidation,
	"NOT_FOUND":          ErrNotFound,
	"INVALID_TRANSITION": ErrInvalidTransition,
	"CONFLICT":           ErrConflict,
	"PAYMENT_CANCELLED":  ErrPaymentCancelled,
	"EMPTY_CART":         ErrEmptyCart,
	"OUT_OF_STOCK":       ErrOutOfStock,
	"BACKEND_ERROR":      ErrBackend,
}

// APIError is a definitive rejection by the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: %s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && sentinel == target
}

// ValidationError is raised before any request is sent.
type ValidationError struct {
	Details map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("client: invalid input: %v", e.Details)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type errorBody struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details"`
}

// codeForStatus covers responses that did not carry a taxonomy body, such as
// proxy errors.
func codeForStatus(status int) string {
	switch {
	case status == 401:
		return "AUTH_REQUIRED"
	case status == 403:
		return "FORBIDDEN"
	case status == 404:
		return "NOT_FOUND"
	case status == 402:
		return "PAYMENT_CANCELLED"
	case status >= 400 && status < 500:
		return "VALIDATION_FAILED"
	default:
		return "BACKEND_ERROR"
	}
}
