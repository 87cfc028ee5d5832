// Package httpx is the shared outbound HTTP plumbing for the travel data
// clients. Every request goes through an otelhttp-instrumented transport, an
// optional token-bucket rate limiter and an explicit timeout, and every non-2xx
// response is classified as a *StatusError.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single outbound request when no timeout is configured.
const DefaultTimeout = 15 * time.Second

// maxErrorBody is how many bytes of a failed response body end up in StatusError.
const maxErrorBody = 512

// ErrNotConfigured marks a client that cannot be built because a required
// credential or setting is missing.
var ErrNotConfigured = errors.New("not configured")

// StatusError is returned for any non-2xx upstream response.
type StatusError struct {
	// Service names the upstream API (e.g. "duffel").
	Service string

	// Code is the HTTP status code.
	Code int

	// Body holds the start of the response body.
	Body string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: upstream returned %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s: upstream returned %d: %s", e.Service, e.Code, e.Body)
}

// Client performs JSON requests against one upstream service.
// It is safe for concurrent use.
type Client struct {
	service string
	hc      *http.Client
	limiter *rate.Limiter
	header  http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
// Apply it before WithHTTPClient or not at all when supplying your own client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.hc.Timeout = d
		}
	}
}

// WithRateLimit limits the client to perSecond requests with the given burst.
// A non-positive perSecond disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

// New returns a Client for service.
func New(service string, opts ...Option) *Client {
	c := &Client{
		service: service,
		hc:      NewHTTPClient(DefaultTimeout),
		header:  make(http.Header),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewHTTPClient returns an *http.Client with an otelhttp transport and the
// given timeout. It is also used for the LLM and embeddings SDK clients.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Service returns the name passed to New.
func (c *Client) Service() string { return c.service }

// Do sends req after waiting for the rate limiter. The caller owns the
// response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("%s: rate limit wait: %w", c.service, err)
		}
	}
	for k, vs := range c.header {
		if req.Header.Get(k) == "" {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.service, err)
	}
	return resp, nil
}

// GetJSON issues a GET to rawURL with query and decodes a JSON 2xx response
// into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, header http.Header, out any) error {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.service, err)
	}
	copyHeader(req.Header, header)
	return c.doJSON(req, out)
}

// PostJSON marshals body, POSTs it to rawURL and decodes a JSON 2xx response
// into out.
func (c *Client) PostJSON(ctx context.Context, rawURL string, header http.Header, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.service, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.service, err)
	}
	req.Header.Set("Content-Type", "application/json")
	copyHeader(req.Header, header)
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Service: c.service, Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.service, err)
	}
	return nil
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
