// Package httpclient is the outbound HTTP client used to fetch discovery
// configurations and documents. It enforces a response size ceiling and
// supports conditional requests against ETag and Last-Modified validators.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum response body size (10MB)
	MaxResponseSize = 10 * 1024 * 1024
)

// Client wraps the HTTP client with logging and size limits.
type Client struct {
	client *http.Client
	logger ectologger.Logger
}

// Config holds HTTP client configuration.
type Config struct {
	TimeoutSeconds     int  `env:"HTTP_CLIENT_TIMEOUT_SECONDS" default:"30"`
	MaxIdleConns       int  `env:"HTTP_CLIENT_MAX_IDLE_CONNS" default:"100"`
	IdleConnTimeout    int  `env:"HTTP_CLIENT_IDLE_CONN_TIMEOUT_SECONDS" default:"90"`
	DisableCompression bool `env:"HTTP_CLIENT_DISABLE_COMPRESSION" default:"false"`
	DisableKeepAlives  bool `env:"HTTP_CLIENT_DISABLE_KEEP_ALIVES" default:"false"`
}

// DefaultConfig returns default HTTP client configuration.
func DefaultConfig() Config {
	return Config{
		TimeoutSeconds:  30,
		MaxIdleConns:    100,
		IdleConnTimeout: 90,
	}
}

// NewClient creates a new HTTP client.
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:       cfg.MaxIdleConns,
		IdleConnTimeout:    time.Duration(cfg.IdleConnTimeout) * time.Second,
		DisableCompression: cfg.DisableCompression,
		DisableKeepAlives:  cfg.DisableKeepAlives,
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		logger: logger,
	}
}

// Response represents an HTTP response.
type Response struct {
	StatusCode    int               `json:"status_code"`
	Headers       map[string]string `json:"headers"`
	Body          []byte            `json:"-"`
	ContentType   string            `json:"content_type"`
	ContentLength int64             `json:"content_length"`
	ETag          string            `json:"etag,omitempty"`
	LastModified  string            `json:"last_modified,omitempty"`
	Duration      time.Duration     `json:"duration_ms"`
}

// NotModified reports whether the server answered 304 to a conditional
// request. The body is empty in that case and the cached copy is current.
func (r *Response) NotModified() bool {
	return r.StatusCode == http.StatusNotModified
}

// Do executes an HTTP request and returns the response.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	start := time.Now()

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("HTTP request failed: %s %s", req.Method, req.URL.String())
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	metrics.RecordHTTPRequest(req.Method, strconv.Itoa(resp.StatusCode), duration.Seconds())

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response too large: %d bytes (max %d)", resp.ContentLength, MaxResponseSize)
	}

	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response body too large: %d bytes (max %d)", len(body), MaxResponseSize)
	}

	headers := make(map[string]string)
	for key, values := range resp.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	response := &Response{
		StatusCode:    resp.StatusCode,
		Headers:       headers,
		Body:          body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: int64(len(body)),
		ETag:          resp.Header.Get("ETag"),
		LastModified:  resp.Header.Get("Last-Modified"),
		Duration:      duration,
	}

	c.logger.WithContext(ctx).Debugf("HTTP %s %s -> %d (%s)",
		req.Method, req.URL.String(), resp.StatusCode, duration)

	return response, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return c.Do(ctx, req)
}

// GetConditional performs a GET carrying the validators from a previous
// fetch. When the server still has the same representation it answers 304
// and the caller keeps its cached copy.
func (c *Client) GetConditional(ctx context.Context, url, etag, lastModified string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	return c.Do(ctx, req)
}

// SetTimeout sets a custom timeout for the client.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}
