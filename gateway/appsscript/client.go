// Package appsscript implements the gateway.Caller for the Apps-Script
// style remote endpoint: one GET per call, the action and JSON payload
// query-encoded, a JSON envelope with a success flag in the body.
package appsscript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	posErrors "github.com/beautystore/beautypos/errors"
	"github.com/beautystore/beautypos/gateway"
	"github.com/beautystore/beautypos/logging"
)

// DefaultMaxBodyBytes bounds how much of a remote response is read.
const DefaultMaxBodyBytes = 4 << 20 // 4MB

// Client calls the remote endpoint. It holds no state beyond its
// configuration; every call is independent.
type Client struct {
	baseURL      string
	http         *http.Client
	maxBodyBytes int64
	nonce        func() string
	logger       *logging.Logger
}

var _ gateway.Caller = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(cl *http.Client) Option {
	return func(c *Client) { c.http = cl }
}

// WithTimeout bounds a single call. A call that does not resolve within
// the bound is a network failure.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithMaxBodyBytes caps the response size read from the remote.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) { c.maxBodyBytes = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithNonce overrides the cache-busting nonce source. Tests use this to
// make request URLs deterministic.
func WithNonce(fn func() string) Option {
	return func(c *Client) { c.nonce = fn }
}

// New creates a Client for the given endpoint URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      baseURL,
		http:         &http.Client{Timeout: 10 * time.Second},
		maxBodyBytes: DefaultMaxBodyBytes,
		nonce: func() string {
			return strconv.FormatInt(time.Now().UnixMilli(), 10)
		},
		logger: logging.WithComponent(logging.Component("gateway")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call issues one remote call. The response body is always read and
// parsed; a transport that cannot produce a readable, parseable response
// yields an error, never an implicit success.
func (c *Client) Call(ctx context.Context, action gateway.Action, payload interface{}) (*gateway.Response, error) {
	query := url.Values{}
	query.Set("action", string(action))
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, posErrors.NewWithComponent(posErrors.OpCall, "gateway",
				fmt.Errorf("failed to marshal payload: %w", err))
		}
		query.Set("data", string(data))
	}
	query.Set("_", c.nonce())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, posErrors.NewWithComponent(posErrors.OpCall, "gateway",
			fmt.Errorf("failed to create request: %w", err))
	}

	c.logger.Debug("calling remote", slog.String("action", string(action)))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, posErrors.NewNetworkError(posErrors.OpCall,
			fmt.Errorf("%s: %w", action, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return nil, posErrors.NewNetworkError(posErrors.OpCall,
			fmt.Errorf("%s: reading response: %w", action, err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, posErrors.NewNetworkError(posErrors.OpCall,
			fmt.Errorf("%s: HTTP %d: %s", action, resp.StatusCode, resp.Status))
	}

	var envelope gateway.Response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, posErrors.NewParseError(posErrors.OpCall,
			fmt.Errorf("%s: malformed response: %w", action, err))
	}

	if !envelope.Success {
		return &envelope, posErrors.NewRemoteError(posErrors.OpCall,
			fmt.Errorf("%s: remote reported failure: %s", action, envelope.Error))
	}

	c.logger.Debug("remote call succeeded", slog.String("action", string(action)))
	return &envelope, nil
}
