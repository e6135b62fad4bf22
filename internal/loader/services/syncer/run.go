package syncer

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/haukened/blocklist-loader/internal/loader/domain"
)

// ListResult is one blocklist's outcome in a full run.
type ListResult struct {
	Blocklist domain.Blocklist
	Result    Result
	Err       error
}

// Report summarises a run over many blocklists.
type Report struct {
	Results []ListResult
	// Err combines every per-list failure; nil when all lists synced.
	Err error
}

// Count returns how many lists ended with the given outcome.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, lr := range r.Results {
		if lr.Err == nil && lr.Result.Outcome == o {
			n++
		}
	}
	return n
}

// Failed returns the number of lists that failed.
func (r Report) Failed() int {
	n := 0
	for _, lr := range r.Results {
		if lr.Err != nil {
			n++
		}
	}
	return n
}

// LogFields returns the run summary for log lines.
func (r Report) LogFields() map[string]any {
	return map[string]any{
		"lists":     len(r.Results),
		"synced":    r.Count(OutcomeSynced),
		"unchanged": r.Count(OutcomeUnchanged),
		"failed":    r.Failed(),
	}
}

// SyncAll syncs every list's current content. Lists are isolated: one
// failure never stops the others. Order is shuffled when configured and at
// most Parallelism lists run at once.
func (s *Syncer) SyncAll(ctx context.Context, lists []domain.Blocklist) Report {
	order := slices.Clone(lists)
	s.shuffle(order)

	results := make([]ListResult, len(order))
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, b := range order {
		g.Go(func() error {
			res, err := s.Sync(ctx, b, CurrentSource(b))
			results[i] = ListResult{Blocklist: b, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs error
	for _, lr := range results {
		errs = multierr.Append(errs, lr.Err)
	}
	report := Report{Results: results, Err: errs}
	s.logger.Info(report.LogFields(), "Run finished")
	return report
}

// SyncCatalog lists the whole catalog and syncs it. A failed listing aborts
// the run before any list is touched.
func (s *Syncer) SyncCatalog(ctx context.Context) (Report, error) {
	if s.catalog == nil {
		return Report{}, errNoCatalog
	}
	lists, err := s.catalog.ListBlocklists(ctx)
	if err != nil {
		return Report{}, err
	}
	s.logger.Info(map[string]any{"lists": len(lists)}, "Loaded catalog")
	return s.SyncAll(ctx, lists), nil
}

// SyncOne syncs a single catalog entry's current content.
func (s *Syncer) SyncOne(ctx context.Context, id uuid.UUID) (Result, error) {
	if s.catalog == nil {
		return Result{}, errNoCatalog
	}
	b, err := s.catalog.GetBlocklist(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return s.Sync(ctx, b, CurrentSource(b))
}
