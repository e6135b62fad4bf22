package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haukened/blocklist-loader/internal/loader/common/log"
	"github.com/haukened/blocklist-loader/internal/loader/domain"
)

// Error message constants for consistent error handling
const (
	errBaseURLRequired   = "api base url is required"
	errAuthTokenRequired = "api auth token is required"
	errInvalidBaseURL    = "invalid api base url %q: %v"
	errEncodeBody        = "encode request body: %w"
	errDecodeBody        = "decode response body"
	errReadBody          = "read response body: %w"
)

const (
	authHeader       = "Authorization-Token"
	defaultTimeout   = 90 * time.Second
	defaultUserAgent = "blocklist-loader"
	maxErrorBody     = 4096
)

// Options configures the backend client.
type Options struct {
	// required parameters
	BaseURL   string
	AuthToken string
	// optional parameters
	Timeout   time.Duration
	UserAgent string
	Logger    log.Logger
	// options to inject for testing purposes
	HTTPClient *http.Client
}

// Client talks to the blocklist backend API. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	token     string
	userAgent string
	http      *http.Client
	logger    log.Logger
}

// NewClient validates opts and builds a Client. Every request is bounded by
// opts.Timeout (default 90s); a timeout surfaces as an APIError.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, domain.ConfigError(errBaseURLRequired)
	}
	if strings.TrimSpace(opts.AuthToken) == "" {
		return nil, domain.ConfigError(errAuthTokenRequired)
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, domain.ConfigError(errInvalidBaseURL, opts.BaseURL, err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		base:      base,
		token:     opts.AuthToken,
		userAgent: opts.UserAgent,
		http:      opts.HTTPClient,
		logger:    opts.Logger,
	}, nil
}

// request describes one backend call.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	want   int
	// allowEmpty accepts an empty success body, leaving out untouched.
	allowEmpty bool
}

// endpoint joins path onto the base URL, keeping any base path prefix.
func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

// send performs the call and returns the response with its body unread.
// Any status other than r.want is an APIError; the caller owns resp.Body on success.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	var body io.Reader
	if r.body != nil {
		buf, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf(errEncodeBody, err)
		}
		body = bytes.NewReader(buf)
	}

	target := c.endpoint(r.path, r.query)
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, &domain.APIError{Op: r.op, Method: r.method, URL: target, Err: err}
	}
	req.Header.Set(authHeader, c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.APIError{Op: r.op, Method: r.method, URL: target, Err: err}
	}
	c.logger.Debug(map[string]any{
		"op":          r.op,
		"method":      r.method,
		"url":         target,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}, "api_call")

	if resp.StatusCode != r.want {
		defer resp.Body.Close()
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.APIError{
			Op:         r.op,
			Method:     r.method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       string(preview),
		}
	}
	return resp, nil
}

// call performs the request and decodes a JSON response into out when out is non-nil.
func (c *Client) call(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.APIError{Op: r.op, Method: r.method, StatusCode: resp.StatusCode, Err: fmt.Errorf(errReadBody, err)}
	}
	if out == nil || (r.allowEmpty && len(bytes.TrimSpace(raw)) == 0) {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.APIError{
			Op:         r.op,
			Method:     r.method,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw), maxErrorBody),
			Err:        domain.ParseError(errDecodeBody, err),
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
