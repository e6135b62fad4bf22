package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/haukened/blocklist-loader/internal/loader/domain"
)

func entryPeriodPath(blocklistID, versionID uuid.UUID) string {
	return "/blocklists/" + blocklistID.String() + "/versions/" + versionID.String() + "/entries"
}

// OpenEntryPeriod records that d (re)appeared in the list as of versionID.
func (c *Client) OpenEntryPeriod(ctx context.Context, blocklistID, versionID uuid.UUID, d domain.Domain) error {
	return c.call(ctx, request{
		op:     "open entry period " + string(d),
		method: http.MethodPost,
		path:   entryPeriodPath(blocklistID, versionID),
		body:   string(d),
		want:   http.StatusCreated,
	}, nil)
}

// CloseEntryPeriod records that d was last present in versionID.
func (c *Client) CloseEntryPeriod(ctx context.Context, blocklistID, versionID uuid.UUID, d domain.Domain) error {
	return c.call(ctx, request{
		op:     "close entry period " + string(d),
		method: http.MethodPut,
		path:   entryPeriodPath(blocklistID, versionID),
		body:   string(d),
		want:   http.StatusCreated,
	}, nil)
}

// BulkCreateEntries uploads one batch of domains for a version's first load.
func (c *Client) BulkCreateEntries(ctx context.Context, versionID uuid.UUID, domains []domain.Domain) error {
	names := make([]string, len(domains))
	for i, d := range domains {
		names[i] = string(d)
	}
	return c.call(ctx, request{
		op:     "bulk create entries",
		method: http.MethodPut,
		path:   "/versions/" + versionID.String() + "/entries",
		body:   names,
		want:   http.StatusCreated,
	}, nil)
}
