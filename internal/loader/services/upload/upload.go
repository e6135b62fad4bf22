// Package upload turns a diff into entry-period mutations against the backend.
package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/haukened/blocklist-loader/internal/loader/common/log"
	"github.com/haukened/blocklist-loader/internal/loader/domain"
	"github.com/haukened/blocklist-loader/internal/loader/services/diff"
)

const (
	DefaultMaxInFlight = 80
	DefaultBatchSize   = 1000
)

var errNoPrevious = errors.New("removed domains require a previous version")

// EntryWriter issues entry mutations. Implemented by the api client.
type EntryWriter interface {
	OpenEntryPeriod(ctx context.Context, blocklistID, versionID uuid.UUID, d domain.Domain) error
	CloseEntryPeriod(ctx context.Context, blocklistID, versionID uuid.UUID, d domain.Domain) error
	BulkCreateEntries(ctx context.Context, versionID uuid.UUID, domains []domain.Domain) error
}

// Plan is one diff bound to the versions it mutates. Added domains open
// against Current, removed domains close against Previous.
type Plan struct {
	BlocklistID uuid.UUID
	Previous    domain.Version
	Current     domain.Version
	Diff        diff.Result
}

// Counts aggregates what an upload did.
type Counts struct {
	Added     int
	Removed   int
	Unchanged int
	// Batches is the number of join points (Apply) or bulk calls (BulkLoad).
	Batches int
}

// Changed reports whether the upload added or removed anything.
func (c Counts) Changed() bool { return c.Added > 0 || c.Removed > 0 }

// Options configures a Coordinator.
type Options struct {
	Writer      EntryWriter
	MaxInFlight int
	BatchSize   int
	Logger      log.Logger
}

// Coordinator applies plans with bounded concurrency.
type Coordinator struct {
	writer      EntryWriter
	maxInFlight int
	batchSize   int
	logger      log.Logger
}

// NewCoordinator builds a Coordinator, defaulting unset limits.
func NewCoordinator(opts Options) *Coordinator {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Coordinator{
		writer:      opts.Writer,
		maxInFlight: opts.MaxInFlight,
		batchSize:   opts.BatchSize,
		logger:      opts.Logger,
	}
}

type mutation func(ctx context.Context) error

// Apply issues one open per added domain and one close per removed domain.
// At most MaxInFlight calls run at once; each batch is joined before the next
// starts. The first failure stops new batches and is returned once the
// in-flight batch has drained.
func (c *Coordinator) Apply(ctx context.Context, plan Plan) (Counts, error) {
	if !plan.Diff.Removed.IsEmpty() && plan.Previous.ID == uuid.Nil {
		return Counts{}, errNoPrevious
	}

	work := make([]mutation, 0, plan.Diff.Added.Len()+plan.Diff.Removed.Len())
	for _, d := range plan.Diff.Added.Items() {
		work = append(work, func(ctx context.Context) error {
			return c.writer.OpenEntryPeriod(ctx, plan.BlocklistID, plan.Current.ID, d)
		})
	}
	for _, d := range plan.Diff.Removed.Items() {
		work = append(work, func(ctx context.Context) error {
			return c.writer.CloseEntryPeriod(ctx, plan.BlocklistID, plan.Previous.ID, d)
		})
	}

	counts := Counts{
		Added:     plan.Diff.Added.Len(),
		Removed:   plan.Diff.Removed.Len(),
		Unchanged: plan.Diff.Unchanged.Len(),
	}
	for start := 0; start < len(work); start += c.maxInFlight {
		batch := work[start:min(start+c.maxInFlight, len(work))]

		// A plain Group: a failure must not cancel siblings already in flight.
		var g errgroup.Group
		for _, m := range batch {
			g.Go(func() error { return m(ctx) })
		}
		counts.Batches++
		if err := g.Wait(); err != nil {
			c.logger.Warn(map[string]any{
				"blocklist_id": plan.BlocklistID.String(),
				"batch":        counts.Batches,
				"error":        err,
			}, "Entry mutation failed, stopping upload")
			return counts, fmt.Errorf("apply mutations: %w", err)
		}
		c.logger.Debug(map[string]any{
			"blocklist_id": plan.BlocklistID.String(),
			"batch":        counts.Batches,
			"size":         len(batch),
		}, "upload_batch_done")
	}
	return counts, nil
}

// BulkLoad uploads every domain of set for a first load, BatchSize domains per
// call, one call at a time.
func (c *Coordinator) BulkLoad(ctx context.Context, version domain.Version, set domain.DomainSet) (Counts, error) {
	items := set.Items()
	counts := Counts{Added: len(items)}
	for start := 0; start < len(items); start += c.batchSize {
		batch := items[start:min(start+c.batchSize, len(items))]
		if err := c.writer.BulkCreateEntries(ctx, version.ID, batch); err != nil {
			return counts, fmt.Errorf("bulk load batch %d: %w", counts.Batches+1, err)
		}
		counts.Batches++
		c.logger.Debug(map[string]any{
			"version_id": version.ID.String(),
			"batch":      counts.Batches,
			"size":       len(batch),
		}, "bulk_batch_done")
	}
	return counts, nil
}
