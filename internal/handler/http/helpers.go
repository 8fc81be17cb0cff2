package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/checkout"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
	"github.com/vasiliy-maslov/storefront/internal/product"
	"github.com/vasiliy-maslov/storefront/internal/session"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

// Wire codes of the error taxonomy shared with the API client.
const (
	CodeAuthRequired      = "AUTH_REQUIRED"
	CodeForbidden         = "FORBIDDEN"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeConflict          = "CONFLICT"
	CodePaymentCancelled  = "PAYMENT_CANCELLED"
	CodeEmptyCart         = "EMPTY_CART"
	CodeOutOfStock        = "OUT_OF_STOCK"
	CodeBackendError      = "BACKEND_ERROR"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response","code":"BACKEND_ERROR"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) (int, string) {
	var (
		productInvalid  *product.ValidationError
		checkoutInvalid *checkout.ValidationError
	)

	switch {
	case errors.Is(err, session.ErrAuthRequired), errors.Is(err, user.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeAuthRequired
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.As(err, &productInvalid),
		errors.As(err, &checkoutInvalid),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, user.ErrInvalidRole),
		errors.Is(err, user.ErrPasswordTooShort):
		return http.StatusBadRequest, CodeValidationFailed
	case errors.Is(err, user.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, cart.ErrProductNotFound),
		errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, order.ErrInvalidStatusTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, order.ErrStatusConflict),
		errors.Is(err, user.ErrEmailExists),
		errors.Is(err, checkout.ErrPaymentMismatch),
		errors.Is(err, checkout.ErrPaymentReused):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, payment.ErrPaymentCancelled):
		return http.StatusPaymentRequired, CodePaymentCancelled
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest, CodeEmptyCart
	case errors.Is(err, cart.ErrOutOfStock), errors.Is(err, checkout.ErrOutOfStock):
		return http.StatusConflict, CodeOutOfStock
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, CodeBackendError
	default:
		return http.StatusInternalServerError, CodeBackendError
	}
}

// respondWithServiceError maps a service error onto the wire. Backend errors
// never leak their text; fallback is sent instead.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, code := mapErrorToStatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg(fallback)
		respondWithError(w, status, code, fallback)
		return
	}

	log.Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request rejected")
	respondWithError(w, status, code, errorMessage(err))
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, user.ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, user.ErrEmailExists):
		return "Email already exists"
	}
	msg := err.Error()
	if msg == "" {
		return "Request failed"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			details[fe.Field()] = "is required"
		case "email":
			details[fe.Field()] = "must be a valid email"
		case "min":
			details[fe.Field()] = fmt.Sprintf("must be at least %s", fe.Param())
		case "len":
			details[fe.Field()] = fmt.Sprintf("must be exactly %s characters", fe.Param())
		case "numeric":
			details[fe.Field()] = "must contain digits only"
		case "oneof":
			details[fe.Field()] = "must be one of: " + fe.Param()
		case "gte":
			details[fe.Field()] = "must be greater than or equal to " + fe.Param()
		case "gt":
			details[fe.Field()] = "must be greater than " + fe.Param()
		case "uuid", "uuid4":
			details[fe.Field()] = "must be a valid id"
		default:
			details[fe.Field()] = "is invalid"
		}
	}
	return details
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether to continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, CodeValidationFailed, fmt.Sprintf("Invalid request payload: %v", err))
		return false
	}

	if err := v.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Code:    CodeValidationFailed,
				Details: formatValidationErrors(validationErrors),
			})
		} else {
			log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, CodeBackendError, "Internal validation error")
		}
		return false
	}
	return true
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// currentSession is the authenticated caller; routes using it sit behind session.Authenticate.
func currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := session.FromContext(r.Context())
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, CodeAuthRequired, "Authentication required")
		return nil, false
	}
	return s, true
}

// checkScope rejects a user_id/seller_id style parameter naming someone other
// than the caller. An absent parameter means the caller.
func checkScope(w http.ResponseWriter, s *session.Session, name, raw string) bool {
	if raw == "" {
		return true
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, CodeValidationFailed, "Invalid "+name)
		return false
	}
	if id != s.UserID {
		log.Warn().Stringer("user_id", s.UserID).Str(name, raw).Msg("Scope parameter does not match session")
		respondWithError(w, http.StatusForbidden, CodeForbidden, "Cannot access another user's data")
		return false
	}
	return true
}

func queryUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		respondWithError(w, http.StatusBadRequest, CodeValidationFailed, name+" is required")
		return uuid.Nil, false
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		log.Warn().Err(err).Str(name, raw).Msg("Failed to parse id query parameter")
		respondWithError(w, http.StatusBadRequest, CodeValidationFailed, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
