// Package twinadmin is an HTTP client for the storefront twin's /admin/*
// control plane.
package twinadmin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Fault mirrors the twin's fault definition.
type Fault struct {
	StatusCode int     `json:"status_code"`
	Body       string  `json:"body,omitempty"`
	Rate       float64 `json:"rate,omitempty"`
}

// Client talks to a twin's /admin/* endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the twin at baseURL with a 5-second timeout.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Health checks GET /admin/health. Returns (ok, response body or error message).
func (c *Client) Health(ctx context.Context) (bool, string) {
	body, status, err := c.do(ctx, http.MethodGet, "/admin/health", nil)
	if err != nil {
		return false, err.Error()
	}
	if status == http.StatusOK {
		return true, body
	}
	return false, fmt.Sprintf("status %d: %s", status, body)
}

// Reset calls POST /admin/reset.
func (c *Client) Reset(ctx context.Context) (string, error) {
	return c.expectOK(ctx, "reset", http.MethodPost, "/admin/reset", nil)
}

// Seed POSTs the contents of a JSON file to /admin/state.
func (c *Client) Seed(ctx context.Context, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("reading seed file: %w", err)
	}
	return c.expectOK(ctx, "seed", http.MethodPost, "/admin/state", data)
}

// State returns the raw GET /admin/state snapshot.
func (c *Client) State(ctx context.Context) (string, error) {
	return c.expectOK(ctx, "state", http.MethodGet, "/admin/state", nil)
}

// OTP returns the latest sign-in code sent to to, or "" when none was.
func (c *Client) OTP(ctx context.Context, to string) (string, error) {
	body, err := c.expectOK(ctx, "otp lookup", http.MethodGet, "/admin/otp?to="+url.QueryEscape(to), nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return "", fmt.Errorf("decoding otp lookup: %w", err)
	}
	return out.Code, nil
}

// InjectFault makes the twin answer path with f.
func (c *Client) InjectFault(ctx context.Context, path string, f Fault) (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return c.expectOK(ctx, "fault", http.MethodPost, "/admin/fault/"+strings.TrimPrefix(path, "/"), data)
}

// RemoveFault clears the fault on path.
func (c *Client) RemoveFault(ctx context.Context, path string) (string, error) {
	return c.expectOK(ctx, "fault removal", http.MethodDelete, "/admin/fault/"+strings.TrimPrefix(path, "/"), nil)
}

// AdvanceTime moves the twin's clock forward by d.
func (c *Client) AdvanceTime(ctx context.Context, d time.Duration) (string, error) {
	data, err := json.Marshal(map[string]string{"duration": d.String()})
	if err != nil {
		return "", err
	}
	return c.expectOK(ctx, "time advance", http.MethodPost, "/admin/time/advance", data)
}

func (c *Client) expectOK(ctx context.Context, what, method, path string, payload []byte) (string, error) {
	body, status, err := c.do(ctx, method, path, payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%s failed (status %d): %s", what, status, body)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (string, int, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return "", 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return strings.TrimSpace(string(body)), resp.StatusCode, nil
}
