// Package httpclient is the HTTP client used for calls to external services,
// such as the face analysis engine.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/DeGirum/face-recognition/internal/errors"
)

const (
	// DefaultTimeout applies when the request context has no deadline.
	DefaultTimeout = 30 * time.Second

	defaultUserAgent       = "facetrack"
	defaultIdleConnTimeout = 90 * time.Second
	defaultDialTimeout     = 30 * time.Second

	// maxErrorBody bounds how much of a failed response is kept for the error message.
	maxErrorBody = 1024
)

// Config holds configuration for creating a Client.
type Config struct {
	// DefaultTimeout is applied if the request context has no deadline
	DefaultTimeout time.Duration
	UserAgent      string
	// Component names the caller in errors
	Component string
}

// Client wraps http.Client with per-request timeouts, a User-Agent and JSON helpers.
// Safe for concurrent use.
type Client struct {
	client         *http.Client
	defaultTimeout time.Duration
	userAgent      string
	component      string
}

// New creates a client. A nil cfg uses defaults.
func New(cfg *Config) *Client {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Component == "" {
		c.Component = "httpclient"
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     defaultIdleConnTimeout,
	}

	return &Client{
		client:         &http.Client{Transport: transport},
		defaultTimeout: c.DefaultTimeout,
		userAgent:      c.UserAgent,
		component:      c.Component,
	}
}

// HTTPClient exposes the underlying client, e.g. for transport mocking in tests.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// Do executes req bounded by ctx, or by the default timeout when ctx has no deadline.
// The response body must be closed by the caller if err is nil; the returned
// cancel func must be called once the body has been consumed.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok && c.defaultTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.defaultTimeout)
	}
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, nil, c.transportError(ctx, req, err)
	}
	return resp, cancel, nil
}

// PostJSON sends body as JSON and decodes a 2xx JSON response into out.
// Non-2xx responses become errors carrying the status code.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create POST request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, cancel, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.Newf("%s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(snippet)).
			Component(c.component).
			Category(errors.CategoryHTTP).
			Context("status_code", resp.StatusCode).
			Context("url", req.URL.Redacted()).
			Build()
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(fmt.Errorf("decode response from %s: %w", req.URL.Path, err)).
			Component(c.component).
			Category(errors.CategoryHTTP).
			Build()
	}
	return nil
}

// Close closes idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

func (c *Client) transportError(ctx context.Context, req *http.Request, err error) error {
	category := errors.CategoryNetwork
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		category = errors.CategoryTimeout
	}
	return errors.New(fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)).
		Component(c.component).
		Category(category).
		Build()
}
