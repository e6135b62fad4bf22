// Package history replays a manifest of past list snapshots, oldest first.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/haukened/blocklist-loader/internal/loader/common/log"
	"github.com/haukened/blocklist-loader/internal/loader/domain"
	"github.com/haukened/blocklist-loader/internal/loader/services/syncer"
)

// Syncer runs one sync. Implemented by *syncer.Syncer.
type Syncer interface {
	Sync(ctx context.Context, b domain.Blocklist, src syncer.Source) (syncer.Result, error)
}

// Options configures a Driver.
type Options struct {
	Syncer Syncer
	Logger log.Logger
}

// Driver feeds historical snapshots through the sync orchestrator.
type Driver struct {
	syncer Syncer
	logger log.Logger
}

func NewDriver(opts Options) *Driver {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Driver{syncer: opts.Syncer, logger: opts.Logger}
}

// Replay syncs every entry in ascending commit order, one at a time, stamping
// each version with its commit time. The first failure aborts the replay.
func (d *Driver) Replay(ctx context.Context, b domain.Blocklist, lists []domain.HistoricalList) error {
	ordered := domain.SortHistorical(lists)
	fields := b.LogFields()
	fields["entries"] = len(ordered)
	d.logger.Info(fields, "Starting historical replay")

	for i, h := range ordered {
		committed := h.CommitTime()
		res, err := d.syncer.Sync(ctx, b, syncer.Source{
			URL:       h.URL,
			Format:    b.Format,
			CreatedOn: &committed,
		})
		if err != nil {
			return fmt.Errorf("replay entry %d/%d (%s, commit %d): %w", i+1, len(ordered), h.URL, h.CommitEpoch, err)
		}
		d.logger.Info(map[string]any{
			"blocklist": b.Name,
			"url":       h.URL,
			"commit":    committed.Format(time.RFC3339),
			"outcome":   res.Outcome.String(),
		}, "Replayed historical list")
	}
	return nil
}
