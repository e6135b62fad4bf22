package syncer

import (
	"context"

	"github.com/google/uuid"

	"github.com/haukened/blocklist-loader/internal/loader/domain"
	"github.com/haukened/blocklist-loader/internal/loader/services/upload"
)

// Catalog lists the blocklists to sync.
type Catalog interface {
	ListBlocklists(ctx context.Context) ([]domain.Blocklist, error)
	GetBlocklist(ctx context.Context, id uuid.UUID) (domain.Blocklist, error)
}

// VersionStore manages version records on the backend.
type VersionStore interface {
	ListVersions(ctx context.Context, blocklistID uuid.UUID) ([]domain.Version, error)
	CreateVersion(ctx context.Context, v domain.Version) (domain.Version, error)
	UpdateVersion(ctx context.Context, v domain.Version) (domain.Version, error)
	DeleteVersion(ctx context.Context, v domain.Version) error
	GetFullDomainSet(ctx context.Context, v domain.Version) (domain.ParsedList, error)
}

// Fetcher downloads and parses published list content.
type Fetcher interface {
	Fetch(ctx context.Context, url string, format domain.Format) (domain.ParsedList, error)
}

// Uploader applies entry mutations.
type Uploader interface {
	Apply(ctx context.Context, plan upload.Plan) (upload.Counts, error)
	BulkLoad(ctx context.Context, version domain.Version, set domain.DomainSet) (upload.Counts, error)
}
