package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
	"github.com/rs/dnscache"
)

// RateLimiter throttles outbound requests to a single host.
//
// Registry implementations pass a RateLimiter to Option so that bursty
// callers (e.g. bulk fetches) don't trip a registry's own rate limiting.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// Client is a generic HTTP client for registry APIs. It retries transient
// failures with exponential backoff, caches DNS lookups, and trips a
// per-host circuit breaker after repeated failures.
type Client struct {
	http        *http.Client
	userAgent   string
	bearerToken string
	maxRetries  int
	baseDelay   time.Duration
	limiter     RateLimiter
	breaker     *circuit.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRateLimiter attaches a rate limiter consulted before every request.
func WithRateLimiter(l RateLimiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// NewClient creates a Client with DNS caching, exponential-backoff retries,
// and a circuit breaker that trips once its failure count reaches 5.
func NewClient(opts ...Option) *Client {
	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			resolver.Refresh(true)
		}
	}()

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	c := &Client{
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
				},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent:  "cargo-unmaintained",
		maxRetries: 5,
		baseDelay:  500 * time.Millisecond,
		breaker: circuit.NewBreakerWithOptions(&circuit.Options{
			BackOff:    expBackoff,
			ShouldTrip: circuit.ThresholdTripFunc(5),
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultClient returns a Client configured with sane defaults: a 30 second
// timeout, 5 retries, and the "cargo-unmaintained" User-Agent.
func DefaultClient() *Client {
	return NewClient()
}

// WithUserAgent returns a shallow copy of the client with the given
// User-Agent header. The underlying HTTP transport, DNS cache, and circuit
// breaker are shared with the original client.
func (c *Client) WithUserAgent(ua string) *Client {
	clone := *c
	clone.userAgent = ua
	return &clone
}

// WithBearerToken returns a shallow copy of the client that sends the given
// token as an `Authorization: Bearer <token>` header on every request.
func (c *Client) WithBearerToken(token string) *Client {
	clone := *c
	clone.bearerToken = token
	return &clone
}

// GetJSON performs a GET request and decodes the JSON response body into v.
// It retries on rate limiting (429) and server errors (5xx); a 404 response
// is surfaced as *core.HTTPError without retrying.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()
	return json.NewDecoder(body).Decode(v)
}

// GetBody performs a GET request and returns the response body as a string.
func (c *Client) GetBody(ctx context.Context, url string) (string, error) {
	body, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}
	return string(data), nil
}

// Head performs a HEAD request and returns the reported content length and
// content type without downloading the body.
func (c *Client) Head(ctx context.Context, url string) (size int64, contentType string, err error) {
	if err := c.wait(ctx); err != nil {
		return 0, "", err
	}

	var resp *http.Response
	breakerErr := c.breaker.Call(func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if reqErr != nil {
			return fmt.Errorf("creating request: %w", reqErr)
		}
		req.Header.Set("User-Agent", c.userAgent)
		if c.bearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.bearerToken)
		}

		var doErr error
		resp, doErr = c.http.Do(req)
		if doErr != nil {
			return doErr
		}
		_ = resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &HTTPError{StatusCode: resp.StatusCode, URL: url}
		}
		return nil
	}, 0)
	if breakerErr != nil {
		return 0, "", breakerErr
	}
	if resp.StatusCode == http.StatusNotFound {
		return 0, "", &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}
	if resp.StatusCode != http.StatusOK {
		return 0, "", &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	size = -1
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, parseErr := strconv.ParseInt(cl, 10, 64); parseErr == nil {
			size = n
		}
	}
	return size, resp.Header.Get("Content-Type"), nil
}

func (c *Client) get(ctx context.Context, url string) (io.ReadCloser, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			jitter := time.Duration(float64(delay) * (rand.Float64() * 0.1))
			delay += jitter

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.doGet(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var httpErr *HTTPError
		if ok := asHTTPError(err, &httpErr); ok {
			if httpErr.IsNotFound() {
				return nil, err
			}
			if httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500 {
				continue
			}
			return nil, err
		}
		return nil, err
	}

	return nil, lastErr
}

func (c *Client) doGet(ctx context.Context, url string) (io.ReadCloser, error) {
	if !c.breaker.Ready() {
		return nil, fmt.Errorf("circuit breaker open for %s", url)
	}

	var body io.ReadCloser
	err := c.breaker.Call(func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if reqErr != nil {
			return fmt.Errorf("creating request: %w", reqErr)
		}
		req.Header.Set("User-Agent", c.userAgent)
		if c.bearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.bearerToken)
		}
		req.Header.Set("Accept", "application/json")

		resp, doErr := c.http.Do(req)
		if doErr != nil {
			return doErr
		}

		if resp.StatusCode == http.StatusOK {
			body = resp.Body
			return nil
		}

		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return &HTTPError{StatusCode: resp.StatusCode, URL: url, Body: string(data)}
	}, 0)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// HTTPError is a non-2xx HTTP response. It is defined here because core
// imports client; core.HTTPError is an alias of this type.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// IsNotFound returns true if the error represents a 404 response.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == 404
}

func asHTTPError(err error, target **HTTPError) bool {
	httpErr, ok := err.(*HTTPError)
	if !ok {
		return false
	}
	*target = httpErr
	return true
}
