// Package client provides the Readwise Reader HTTP client used to walk the
// document list one page at a time.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for list requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readwise_requests_total",
		Help: "Total list requests by HTTP status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "readwise_request_duration_seconds",
		Help:    "List request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	pageResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readwise_page_results_total",
		Help: "Classified list responses by kind",
	}, []string{"kind"})
)

const (
	// DefaultBaseURL is the Readwise API host.
	DefaultBaseURL = "https://readwise.io"

	// ListEndpoint is the Reader document list path.
	ListEndpoint = "/api/v3/list/"

	// PageCursorParam is the query parameter carrying the continuation cursor.
	PageCursorParam = "pageCursor"

	// DefaultUserAgent identifies this tool to the API.
	DefaultUserAgent = "readwise-export/0.1.0"
)

// Client is the Reader list API client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Token is the Readwise access token (REQUIRED)
	Token string

	// BaseURL overrides the API host (tests, proxies)
	BaseURL string

	// UserAgent header sent with every request
	UserAgent string

	// Timeout bounds a single HTTP request
	Timeout time.Duration

	// Retry controls retries of transport failures
	Retry RetryConfig
}

// DefaultConfig returns a default configuration for token.
func DefaultConfig(token string) Config {
	return Config{
		Token:     token,
		BaseURL:   DefaultBaseURL,
		UserAgent: DefaultUserAgent,
		Timeout:   60 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new Reader client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrMissingToken
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	logger := log.With().Str("component", "readwise-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: baseURL,
		config:  cfg,
		logger:  logger,
	}, nil
}

// PageParams builds the request parameters for cursor.
// The first page (empty cursor) has no parameters.
func PageParams(cursor string) url.Values {
	params := url.Values{}
	if cursor != "" {
		params.Set(PageCursorParam, cursor)
	}
	return params
}

// Endpoint returns the list endpoint path.
func (c *Client) Endpoint() string {
	return ListEndpoint
}

// FetchPage requests one page of the document list.
//
// The returned error is reserved for failures that produced no classifiable
// response (transport errors after retries, cancellation). API errors and
// throttling are reported through PageResult.Kind.
func (c *Client) FetchPage(ctx context.Context, cursor string) (*PageResult, error) {
	endpoint := c.baseURL.ResolveReference(&url.URL{Path: ListEndpoint})
	endpoint.RawQuery = PageParams(cursor).Encode()

	var (
		statusCode int
		header     http.Header
		body       []byte
	)

	err := retryWithBackoff(ctx, c.config.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+c.config.Token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.config.UserAgent)

		c.logger.Debug().
			Str("cursor", cursor).
			Str("url", endpoint.Redacted()).
			Msg("Fetching page")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		requestDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			requestsTotal.WithLabelValues("network_error").Inc()
			c.logger.Warn().Err(err).Str("cursor", cursor).Msg("HTTP request failed")
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			requestsTotal.WithLabelValues("network_error").Inc()
			return fmt.Errorf("read response body: %w", err)
		}

		requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		statusCode, header, body = resp.StatusCode, resp.Header, data
		return nil
	}, func(err error) ErrorClass {
		if ctx.Err() != nil {
			return ErrorClassCancelled
		}
		return ErrorClassNetwork
	})
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	result := ClassifyResponse(statusCode, header, body)
	pageResultsTotal.WithLabelValues(string(result.Kind)).Inc()

	event := c.logger.Debug()
	if result.Kind == ResultAPIError {
		event = c.logger.Error()
	}
	event.
		Str("cursor", cursor).
		Int("status", statusCode).
		Str("kind", string(result.Kind)).
		Msg("Page response classified")

	return result, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
