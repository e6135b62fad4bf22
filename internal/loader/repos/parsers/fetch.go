package parsers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haukened/blocklist-loader/internal/loader/common/log"
	"github.com/haukened/blocklist-loader/internal/loader/domain"
)

const (
	defaultFetchTimeout = 90 * time.Second
	defaultUserAgent    = "blocklist-loader"
	errBodyPreview      = 512
)

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	Timeout   time.Duration
	UserAgent string
	Logger    log.Logger
	// options to inject for testing purposes
	HTTPClient *http.Client
}

// Fetcher downloads published list content and parses it.
type Fetcher struct {
	client    *http.Client
	userAgent string
	logger    log.Logger
}

// NewFetcher builds a Fetcher. Missing options fall back to defaults.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultFetchTimeout
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
	return &Fetcher{client: opts.HTTPClient, userAgent: opts.UserAgent, logger: opts.Logger}
}

// Fetch downloads url and parses it with the parser for format.
// An unknown format fails before any network call.
func (f *Fetcher) Fetch(ctx context.Context, url string, format domain.Format) (domain.ParsedList, error) {
	parse, err := ForFormat(format)
	if err != nil {
		return domain.ParsedList{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.ParsedList{}, domain.ConfigError("invalid list url %q: %v", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.ParsedList{}, &domain.APIError{Op: "fetch list", Method: http.MethodGet, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyPreview))
		return domain.ParsedList{}, &domain.APIError{
			Op:         "fetch list",
			Method:     http.MethodGet,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       string(preview),
		}
	}

	parsed, err := Parse(resp.Body, parse, url, f.logger)
	if err != nil {
		return domain.ParsedList{}, fmt.Errorf("parse %s: %w", url, err)
	}
	return parsed, nil
}
