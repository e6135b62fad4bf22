package api

import (
	"bufio"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/haukened/blocklist-loader/internal/loader/common/utils"
	"github.com/haukened/blocklist-loader/internal/loader/domain"
)

// maxEntryLine bounds one line of the entries stream.
const maxEntryLine = 1 << 20

// ListVersions returns every version of a blocklist in the order the backend
// sends them.
func (c *Client) ListVersions(ctx context.Context, blocklistID uuid.UUID) ([]domain.Version, error) {
	var versions []domain.Version
	err := c.call(ctx, request{
		op:     "list versions",
		method: http.MethodGet,
		path:   "/blocklists/" + blocklistID.String() + "/versions",
		want:   http.StatusOK,
	}, &versions)
	return versions, err
}

// CreateVersion posts a new version; the backend assigns its id. Only 201 is
// success. Versions with a creation time are flagged as historical.
func (c *Client) CreateVersion(ctx context.Context, v domain.Version) (domain.Version, error) {
	var query url.Values
	if v.IsHistorical() {
		query = url.Values{"historical": {"true"}}
	}
	var created domain.Version
	err := c.call(ctx, request{
		op:     "create version",
		method: http.MethodPost,
		path:   "/versions",
		query:  query,
		body:   v,
		want:   http.StatusCreated,
	}, &created)
	if err != nil {
		return domain.Version{}, err
	}
	if created.ID == uuid.Nil {
		return domain.Version{}, &domain.APIError{Op: "create version", StatusCode: http.StatusCreated, Err: domain.ParseError("response carries no version id", nil)}
	}
	return created, nil
}

// UpdateVersion replaces a version by id. Only 200 is success.
func (c *Client) UpdateVersion(ctx context.Context, v domain.Version) (domain.Version, error) {
	var updated domain.Version
	err := c.call(ctx, request{
		op:     "update version " + v.ID.String(),
		method: http.MethodPut,
		path:   "/versions",
		body:   v,
		want:   http.StatusOK,
		// some deployments answer an update with an empty 200
		allowEmpty: true,
	}, &updated)
	if err != nil {
		return domain.Version{}, err
	}
	if updated.ID == uuid.Nil {
		return v, nil
	}
	return updated, nil
}

// DeleteVersion removes a version by id. Only 200 is success.
func (c *Client) DeleteVersion(ctx context.Context, v domain.Version) error {
	return c.call(ctx, request{
		op:     "delete version " + v.ID.String(),
		method: http.MethodDelete,
		path:   "/versions/" + v.ID.String(),
		want:   http.StatusOK,
	}, nil)
}

// GetFullDomainSet streams every entry currently open for a version. The
// result carries the version's raw hash for provenance.
func (c *Client) GetFullDomainSet(ctx context.Context, v domain.Version) (domain.ParsedList, error) {
	op := "get entries of version " + v.ID.String()
	resp, err := c.send(ctx, request{
		op:     op,
		method: http.MethodGet,
		path:   "/versions/" + v.ID.String() + "/entries",
		want:   http.StatusOK,
	})
	if err != nil {
		return domain.ParsedList{}, err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEntryLine)
	var domains []domain.Domain
	for scanner.Scan() {
		name := utils.CanonicalDNSName(scanner.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		domains = append(domains, domain.Domain(name))
	}
	if err := scanner.Err(); err != nil {
		return domain.ParsedList{}, &domain.APIError{Op: op, StatusCode: resp.StatusCode, Err: domain.ParseError("read entries", err)}
	}

	return domain.NewParsedList(domain.NewDomainSet(domains...), v.RawSHA256), nil
}
