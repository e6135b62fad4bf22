package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/haukened/blocklist-loader/internal/loader/domain"
)

// ListBlocklists pages through the catalog from page 0 until a page comes back
// empty. Any failed page discards the whole listing.
func (c *Client) ListBlocklists(ctx context.Context) ([]domain.Blocklist, error) {
	all := make([]domain.Blocklist, 0, 200)
	for page := 0; ; page++ {
		items, err := c.listBlocklistPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return all, nil
		}
		all = append(all, items...)
	}
}

func (c *Client) listBlocklistPage(ctx context.Context, page int) ([]domain.Blocklist, error) {
	c.logger.Info(map[string]any{"page": page}, "Loading blocklists page")
	var items []domain.Blocklist
	err := c.call(ctx, request{
		op:     "list blocklists page " + strconv.Itoa(page),
		method: http.MethodGet,
		path:   "/blocklists",
		query:  url.Values{"page": {strconv.Itoa(page)}},
		want:   http.StatusOK,
	}, &items)
	return items, err
}

// GetBlocklist fetches one catalog entry. An unknown id surfaces as an
// APIError with status 404.
func (c *Client) GetBlocklist(ctx context.Context, id uuid.UUID) (domain.Blocklist, error) {
	var b domain.Blocklist
	err := c.call(ctx, request{
		op:     "get blocklist " + id.String(),
		method: http.MethodGet,
		path:   "/blocklists/" + id.String(),
		want:   http.StatusOK,
	}, &b)
	return b, err
}
