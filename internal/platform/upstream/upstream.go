// Package upstream is the shared JSON client for partner REST APIs
// (ShipStation, Resend, reCAPTCHA). It retries throttled and 5xx responses
// with exponential backoff and honors Retry-After.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/platform/timeouts"
	"github.com/cenkalti/backoff/v5"
)

const maxResponseBytes = 1 << 20

// RetryPolicy bounds retries of a single logical call.
type RetryPolicy struct {
	MaxTries uint
	MinWait  time.Duration
	MaxWait  time.Duration
}

// DefaultRetryPolicy is used when a client is built without one.
var DefaultRetryPolicy = RetryPolicy{MaxTries: 3, MinWait: 500 * time.Millisecond, MaxWait: 5 * time.Second}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Client sends JSON requests to one service.
type Client struct {
	service   string
	baseURL   string
	http      *http.Client
	policy    RetryPolicy
	authorize func(*http.Request)
	userAgent string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithBasicAuth authenticates every request with basic auth.
func WithBasicAuth(user, pass string) Option {
	return func(c *Client) {
		c.authorize = func(r *http.Request) { r.SetBasicAuth(user, pass) }
	}
}

// WithBearer authenticates every request with a bearer token.
func WithBearer(token string) Option {
	return func(c *Client) {
		c.authorize = func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
	}
}

// New returns a client for service rooted at baseURL.
func New(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		service:   service,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: timeouts.Upstream},
		policy:    DefaultRetryPolicy,
		userAgent: "drainwiz/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.MaxTries == 0 {
		c.policy.MaxTries = 1
	}
	return c
}

// DoJSON sends in (when non-nil) as JSON to method path and decodes the
// response into out (when non-nil).
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.service, err)
		}
	}
	return c.do(ctx, method, path, "application/json", payload, out)
}

// DoForm sends url-encoded form data and decodes a JSON response.
func (c *Client) DoForm(ctx context.Context, path, form string, out any) error {
	return c.do(ctx, http.MethodPost, path, "application/x-www-form-urlencoded", []byte(form), out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, payload []byte, out any) error {
	exp := backoff.NewExponentialBackOff()
	if c.policy.MinWait > 0 {
		exp.InitialInterval = c.policy.MinWait
	}
	if c.policy.MaxWait > 0 {
		exp.MaxInterval = c.policy.MaxWait
	}

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return c.attempt(ctx, method, path, contentType, payload)
	}, backoff.WithBackOff(exp), backoff.WithMaxTries(c.policy.MaxTries))
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.service, err)
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, method, path, contentType string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%s: build request: %w", c.service, err))
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.authorize != nil {
		c.authorize(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(fmt.Errorf("%s: %w", c.service, ctx.Err()))
		}
		return nil, fmt.Errorf("%s: %w", c.service, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", c.service, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	statusErr := &StatusError{Service: c.service, StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	if !statusErr.Retryable() {
		return nil, backoff.Permanent(statusErr)
	}
	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
		return nil, backoff.RetryAfter(seconds)
	}
	return nil, statusErr
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
