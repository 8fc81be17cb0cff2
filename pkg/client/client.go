// Package client is a typed HTTP client for the storefront API. It owns the
// single timeout and retry policy, carries the caller's session explicitly
// and fans cart-changed notifications out to local subscribers.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront/internal/events"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultRetryCount = 2
	defaultRetryWait  = 200 * time.Millisecond
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	// RetryCount of zero means the default; negative disables retries.
	RetryCount int
	RetryWait  time.Duration
	// Confirmer runs the external payment step of gateway checkouts.
	Confirmer PaymentConfirmer
}

type Client struct {
	http      *resty.Client
	stream    *resty.Client
	hub       *events.Hub
	validate  *validator.Validate
	confirmer PaymentConfirmer

	mu      sync.RWMutex
	session *Session

	checkingOut atomic.Bool
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	} else if cfg.RetryCount == 0 {
		cfg.RetryCount = defaultRetryCount
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/api").
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(4 * cfg.RetryWait).
		AddRetryCondition(shouldRetry)

	// the event stream is long-lived and must not inherit the request timeout
	streamClient := resty.New().SetBaseURL(httpClient.BaseURL)

	return &Client{
		http:      httpClient,
		stream:    streamClient,
		hub:       events.NewHub(),
		validate:  newValidator(),
		confirmer: cfg.Confirmer,
	}
}

// shouldRetry allows retries for GETs only, on transport errors and on
// gateway-style 5xx answers.
func shouldRetry(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return true
	}
	switch resp.StatusCode() {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// SetSession installs the session used for authenticated calls. nil signs out.
func (c *Client) SetSession(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetError(&errorBody{})
}

func (c *Client) authedRequest(ctx context.Context) (*resty.Request, *Session, error) {
	s := c.Session()
	if s == nil || s.Token == "" {
		return nil, nil, ErrAuthRequired
	}
	return c.newRequest(ctx).SetAuthToken(s.Token), s, nil
}

func (c *Client) execute(req *resty.Request, method, path string) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return transportError(method, path, err)
	}
	if resp.IsError() {
		apiErr := toAPIError(resp)
		log.Warn().Str("method", method).Str("path", path).Int("status", apiErr.Status).Str("code", apiErr.Code).Msg("client: request rejected")
		return apiErr
	}
	return nil
}

func transportError(method, path string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		log.Warn().Err(err).Str("method", method).Str("path", path).Msg("client: request timed out")
		return fmt.Errorf("%w: %s %s", ErrNetworkTimeout, method, path)
	}
	log.Error().Err(err).Str("method", method).Str("path", path).Msg("client: request failed")
	return fmt.Errorf("client: %s %s: %w", method, path, err)
}

func toAPIError(resp *resty.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body.Code != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
		apiErr.Details = body.Details
		return apiErr
	}
	apiErr.Code = codeForStatus(resp.StatusCode())
	apiErr.Message = http.StatusText(resp.StatusCode())
	return apiErr
}

// Subscribe registers for cart-changed notifications of the signed-in user.
// The returned func unsubscribes.
func (c *Client) Subscribe(userID uuid.UUID) (<-chan CartChanged, func()) {
	return c.hub.Subscribe(userID)
}

func (c *Client) notifyCartChanged(ctx context.Context, s *Session) {
	c.hub.PublishCartChanged(ctx, s.UserID)
}

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

// check validates input locally so that malformed requests never reach the network.
func (c *Client) check(in interface{}) error {
	err := c.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("client: validate input: %w", err)
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			details[fe.Field()] = fe.Tag() + "=" + fe.Param()
			continue
		}
		details[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Details: details}
}
