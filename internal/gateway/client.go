// Package gateway is the HTTP client for the commerce backend. It owns
// transport concerns only: headers, timeouts, the circuit breaker, and the
// mapping of HTTP failures onto the error taxonomy. Body interpretation
// belongs to the interpret package.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/marisol-labs/storefront-core/pkg/config"
	pkgerrors "github.com/marisol-labs/storefront-core/pkg/errors"
	"github.com/marisol-labs/storefront-core/pkg/logger"
	"github.com/sony/gobreaker/v2"
)

const (
	headerPublishableKey = "x-publishable-api-key"
	headerRequestID      = "X-Request-ID"
)

// TokenSource yields the current bearer token, or empty when anonymous. It is
// invoked fresh on every request so a concurrent logout takes effect
// immediately.
type TokenSource func() string

// Client talks to the commerce gateway.
type Client struct {
	http           *http.Client
	baseURL        string
	publishableKey string
	token          TokenSource
	breaker        *gobreaker.CircuitBreaker[[]byte]
	log            *logger.Logger
}

// New builds a gateway client from config. token must not be nil.
func New(cfg config.GatewayConfig, token TokenSource, log *logger.Logger) (*Client, error) {
	if token == nil {
		return nil, fmt.Errorf("token source required")
	}

	settings := gobreaker.Settings{
		Name:        "commerce-gateway",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= uint32(cfg.BreakerMinRequests) && ratio >= cfg.BreakerFailureRatio
		},
		// Only transport-level failures count against the breaker; a 401 or
		// 404 says nothing about gateway health.
		IsSuccessful: func(err error) bool {
			return err == nil || !pkgerrors.Retryable(err)
		},
	}

	return &Client{
		http:           &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		publishableKey: cfg.PublishableKey,
		token:          token,
		breaker:        gobreaker.NewCircuitBreaker[[]byte](settings),
		log:            log,
	}, nil
}

// CreateCart creates an anonymous cart against a region.
func (c *Client) CreateCart(ctx context.Context, regionID string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/carts", map[string]any{"region_id": regionID})
}

// GetCart is the authoritative refetch-by-id.
func (c *Client) GetCart(ctx context.Context, cartID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/carts/"+cartID, nil)
}

// UpdateCart posts a generic cart mutation (region change, addresses, email).
func (c *Client) UpdateCart(ctx context.Context, cartID string, payload any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/carts/"+cartID, payload)
}

// AddLineItem adds a variant to the cart.
func (c *Client) AddLineItem(ctx context.Context, cartID, variantID string, quantity int) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/carts/"+cartID+"/line-items", map[string]any{
		"variant_id": variantID,
		"quantity":   quantity,
	})
}

// UpdateLineItem changes the quantity of an existing line item.
func (c *Client) UpdateLineItem(ctx context.Context, cartID, lineItemID string, quantity int) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/carts/"+cartID+"/line-items/"+lineItemID, map[string]any{
		"quantity": quantity,
	})
}

// RemoveLineItem deletes a line item.
func (c *Client) RemoveLineItem(ctx context.Context, cartID, lineItemID string) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, "/carts/"+cartID+"/line-items/"+lineItemID, nil)
}

// AssociateCustomer ties the cart to the bearer token's customer.
func (c *Client) AssociateCustomer(ctx context.Context, cartID string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/carts/"+cartID+"/customer", nil)
}

// GetCustomer fetches the bearer token's customer profile, including the
// saved addresses.
func (c *Client) GetCustomer(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/customers/me", nil)
}

// AddShippingMethod selects a shipping option for the cart.
func (c *Client) AddShippingMethod(ctx context.Context, cartID, optionID string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/carts/"+cartID+"/shipping-methods", map[string]any{
		"option_id": optionID,
	})
}

// CreatePaymentSession opens a payment session with the given provider.
func (c *Client) CreatePaymentSession(ctx context.Context, paymentCollectionID, providerID string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/payment-collections/"+paymentCollectionID+"/payment-sessions", map[string]any{
		"provider_id": providerID,
	})
}

// CompleteCart finalizes the cart into an order.
func (c *Client) CompleteCart(ctx context.Context, cartID string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/carts/"+cartID+"/complete", nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTransport, err, "gateway circuit open")
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build request")
	}

	requestID := uuid.NewString()
	req.Header.Set(headerRequestID, requestID)
	req.Header.Set(headerPublishableKey, c.publishableKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// The token is read here, not at call-site, so it is always current.
	if bearer := c.token(); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransport, err, fmt.Sprintf("%s %s", method, path))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransport, err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if c.log != nil {
			ctx := c.log.WithRequestID(ctx, requestID)
			c.log.Warn(ctx, fmt.Sprintf("gateway returned %d for %s %s", resp.StatusCode, method, path))
		}
		return nil, statusError(resp.StatusCode, method, path)
	}
	return raw, nil
}

func statusError(status int, method, path string) error {
	msg := fmt.Sprintf("%s %s returned %d", method, path, status)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, msg)
	case http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	default:
		return pkgerrors.New(pkgerrors.CodeTransport, msg)
	}
}
