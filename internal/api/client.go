// Package api is the HTTP client for the storefront commerce API and the
// guest-identity API. Requests and responses are JSON; any non-2xx status is
// returned as *Error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/wondertwin-ai/storefront/internal/cart"
)

// TokenSource supplies a bearer token per request. An empty token means
// the request goes out without Authorization.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource for a fixed token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Credential names the bearer token a request carried.
type Credential int

const (
	CredentialNone Credential = iota
	CredentialBuyer
	CredentialGuest
)

func (c Credential) String() string {
	switch c {
	case CredentialBuyer:
		return "buyer"
	case CredentialGuest:
		return "guest"
	default:
		return "none"
	}
}

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
	// Credential is the token the rejected request was sent with.
	Credential Credential
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is a 401 API response.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsGuestUnauthorized reports whether err is a 401 for a request that was
// authenticated with the guest session token.
func IsGuestUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized && apiErr.Credential == CredentialGuest
}

// StatusCode returns the HTTP status of an API error, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Client talks to the commerce API.
type Client struct {
	baseURL string
	http    *http.Client
	user    TokenSource
	guest   TokenSource
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport. No timeout is imposed by default.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource sets the authenticated buyer's token source.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.user = ts }
}

// WithGuestTokenSource sets the token source used on guest endpoints.
func WithGuestTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.guest = ts }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// GetProduct fetches a product snapshot, including its store summary.
func (c *Client) GetProduct(ctx context.Context, id string) (cart.Product, error) {
	var p cart.Product
	err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, c.buyerAuth, nil, &p)
	return p, err
}

// GetStore fetches a store summary by slug.
func (c *Client) GetStore(ctx context.Context, slug string) (cart.StoreSummary, error) {
	var s cart.StoreSummary
	err := c.do(ctx, http.MethodGet, "/stores/"+url.PathEscape(slug), nil, nil, nil, &s)
	return s, err
}

// ---------------------------------------------------------------------------
// Orders and payments
// ---------------------------------------------------------------------------

// ValidateCart asks the server whether every product is still purchasable.
func (c *Client) ValidateCart(ctx context.Context, productIDs []string) (*CartValidationResult, error) {
	var out CartValidationResult
	body := map[string]any{"productIds": productIDs}
	if err := c.do(ctx, http.MethodPost, "/orders/validate-cart", nil, c.anyAuth, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrder creates an order for the authenticated buyer.
func (c *Client) CreateOrder(ctx context.Context, productIDs []string) (*Order, error) {
	var out Order
	body := map[string]any{"productIds": productIDs}
	if err := c.do(ctx, http.MethodPost, "/orders", nil, c.buyerAuth, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateGuestOrder creates an order for a guest buyer.
func (c *Client) CreateGuestOrder(ctx context.Context, productIDs []string, email, phone string) (*Order, error) {
	var out Order
	body := map[string]any{"productIds": productIDs, "guestEmail": email}
	if phone != "" {
		body["guestPhone"] = phone
	}
	if err := c.do(ctx, http.MethodPost, "/orders/guest", nil, c.guestAuth, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitiatePayment opens a gateway session for an authenticated order.
func (c *Client) InitiatePayment(ctx context.Context, orderID string, customAmount *int64) (*PaymentSession, error) {
	var out PaymentSession
	body := map[string]any{"orderId": orderID}
	if customAmount != nil {
		body["customAmount"] = *customAmount
	}
	if err := c.do(ctx, http.MethodPost, "/payments/initiate", nil, c.buyerAuth, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitiateGuestPayment opens a gateway session for a guest order.
func (c *Client) InitiateGuestPayment(ctx context.Context, orderID, email string, customAmount *int64) (*PaymentSession, error) {
	var out PaymentSession
	body := map[string]any{"orderId": orderID, "guestEmail": email}
	if customAmount != nil {
		body["customAmount"] = *customAmount
	}
	if err := c.do(ctx, http.MethodPost, "/payments/initiate/guest", nil, c.guestAuth, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPayment asks the server to check the gateway signature.
func (c *Client) VerifyPayment(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
	var out struct {
		Success bool `json:"success"`
	}
	body := map[string]string{
		"gatewayOrderId":   gatewayOrderID,
		"gatewayPaymentId": gatewayPaymentID,
		"gatewaySignature": signature,
	}
	if err := c.do(ctx, http.MethodPost, "/payments/verify", nil, c.anyAuth, body, &out); err != nil {
		return false, err
	}
	return out.Success, nil
}

// CompleteFreeOrder settles a zero-amount authenticated order.
func (c *Client) CompleteFreeOrder(ctx context.Context, orderID string) (*FreeOrderResult, error) {
	var out FreeOrderResult
	body := map[string]any{"orderId": orderID}
	if err := c.do(ctx, http.MethodPost, "/payments/free", nil, c.buyerAuth, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteFreeGuestOrder settles a zero-amount guest order.
func (c *Client) CompleteFreeGuestOrder(ctx context.Context, orderID, email string) (*FreeOrderResult, error) {
	var out FreeOrderResult
	body := map[string]any{"orderId": orderID, "guestEmail": email}
	if err := c.do(ctx, http.MethodPost, "/payments/free/guest", nil, c.guestAuth, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ---------------------------------------------------------------------------
// Guest identity
// ---------------------------------------------------------------------------

// RequestGuestOTP sends a one-time code to the email or phone.
func (c *Client) RequestGuestOTP(ctx context.Context, id GuestIdentifier) (*OTPChallenge, error) {
	var out OTPChallenge
	if err := c.do(ctx, http.MethodPost, "/guest/otp/request", nil, nil, id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyGuestOTP exchanges a code for a guest bearer token.
func (c *Client) VerifyGuestOTP(ctx context.Context, id GuestIdentifier, code string) (*GuestSession, error) {
	var out GuestSession
	body := map[string]string{"email": id.Email, "phone": id.Phone, "code": code}
	if err := c.do(ctx, http.MethodPost, "/guest/otp/verify", nil, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateGuestToken checks a stored token and returns the session it names.
func (c *Client) ValidateGuestToken(ctx context.Context, token string) (*GuestSession, error) {
	var out GuestSession
	if err := c.do(ctx, http.MethodGet, "/guest/session", nil, guestToken(token), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GuestDownloads lists the products purchased under a guest token.
func (c *Client) GuestDownloads(ctx context.Context, token string) ([]Download, error) {
	var out struct {
		Downloads []Download `json:"downloads"`
	}
	if err := c.do(ctx, http.MethodGet, "/guest/downloads", nil, guestToken(token), nil, &out); err != nil {
		return nil, err
	}
	return out.Downloads, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// authFunc yields the bearer token for a request and which credential it is.
type authFunc func(ctx context.Context) (string, Credential, error)

func fromSource(ctx context.Context, ts TokenSource, cred Credential) (string, Credential, error) {
	if ts == nil {
		return "", CredentialNone, nil
	}
	tok, err := ts(ctx)
	if err != nil || tok == "" {
		return "", CredentialNone, err
	}
	return tok, cred, nil
}

func (c *Client) buyerAuth(ctx context.Context) (string, Credential, error) {
	return fromSource(ctx, c.user, CredentialBuyer)
}

func (c *Client) guestAuth(ctx context.Context) (string, Credential, error) {
	return fromSource(ctx, c.guest, CredentialGuest)
}

// anyAuth prefers the buyer's token and falls back to the guest token.
func (c *Client) anyAuth(ctx context.Context) (string, Credential, error) {
	tok, cred, err := c.buyerAuth(ctx)
	if err != nil || tok != "" {
		return tok, cred, err
	}
	return c.guestAuth(ctx)
}

func guestToken(token string) authFunc {
	return func(ctx context.Context) (string, Credential, error) {
		return fromSource(ctx, StaticToken(token), CredentialGuest)
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, auth authFunc, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cred := CredentialNone
	if auth != nil {
		var tok string
		tok, cred, err = auth(ctx)
		if err != nil {
			return fmt.Errorf("obtaining token for %s: %w", path, err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s %s response: %w", method, path, err)
	}

	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Stringer("credential", cred),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    errorMessage(data),
			Credential: cred,
		}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// errorMessage extracts a human-readable message from an error body of the
// form {"error":{"message":...}} or {"message":...}, falling back to the
// raw text.
func errorMessage(data []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &nested); err == nil {
		if nested.Error.Message != "" {
			return nested.Error.Message
		}
		if nested.Message != "" {
			return nested.Message
		}
	}
	return strings.TrimSpace(string(data))
}
