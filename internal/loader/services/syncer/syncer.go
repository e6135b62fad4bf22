// Package syncer drives blocklist syncs: resolve the baseline, parse current
// content, diff, upload and then promote or roll back the new version.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/haukened/blocklist-loader/internal/loader/common/clock"
	"github.com/haukened/blocklist-loader/internal/loader/common/log"
	"github.com/haukened/blocklist-loader/internal/loader/domain"
	"github.com/haukened/blocklist-loader/internal/loader/infra/metrics"
	"github.com/haukened/blocklist-loader/internal/loader/services/diff"
	"github.com/haukened/blocklist-loader/internal/loader/services/upload"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 90 * time.Second
)

// Source names where one sync reads its content. CreatedOn is nil for a
// current sync and the commit time for historical replay.
type Source struct {
	URL       string
	Format    domain.Format
	CreatedOn *time.Time
}

// CurrentSource is the live content of a blocklist.
func CurrentSource(b domain.Blocklist) Source {
	return Source{URL: b.DownloadURL, Format: b.Format}
}

// Result describes a successful sync.
type Result struct {
	Outcome Outcome
	// Version is the baseline after the sync: the promoted version or the
	// heartbeated previous one.
	Version  domain.Version
	Counts   upload.Counts
	Attempts int
}

// Options configures a Syncer.
type Options struct {
	Catalog  Catalog
	Versions VersionStore
	Fetcher  Fetcher
	Uploader Uploader
	Clock    clock.Clock
	Logger   log.Logger
	Metrics  metrics.Recorder
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries  int
	RetryDelay  time.Duration
	Parallelism int
	Shuffle     bool
}

// Syncer is the sync orchestrator. It holds no state between syncs.
type Syncer struct {
	catalog     Catalog
	versions    VersionStore
	fetcher     Fetcher
	uploader    Uploader
	clock       clock.Clock
	logger      log.Logger
	metrics     metrics.Recorder
	maxRetries  int
	retryDelay  time.Duration
	parallelism int
	shuffle     func([]domain.Blocklist)
}

// NewSyncer builds a Syncer.
func NewSyncer(opts Options) *Syncer {
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	shuffle := func([]domain.Blocklist) {}
	if opts.Shuffle {
		shuffle = func(lists []domain.Blocklist) {
			rand.Shuffle(len(lists), func(i, j int) { lists[i], lists[j] = lists[j], lists[i] })
		}
	}
	return &Syncer{
		catalog:     opts.Catalog,
		versions:    opts.Versions,
		fetcher:     opts.Fetcher,
		uploader:    opts.Uploader,
		clock:       opts.Clock,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
		parallelism: opts.Parallelism,
		shuffle:     shuffle,
	}
}

// Sync brings one blocklist's backend state up to date with src. Failed
// attempts are rolled back and retried with a fixed delay unless the error is
// a configuration error.
func (s *Syncer) Sync(ctx context.Context, b domain.Blocklist, src Source) (Result, error) {
	started := s.clock.Now()
	fields := b.LogFields()
	fields["url"] = src.URL

	var (
		res      Result
		attempts int
	)
	backoff := retry.WithMaxRetries(uint64(s.maxRetries), retry.NewConstant(s.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		s.metrics.AddAttempt()
		if attempts > 1 {
			s.metrics.AddRetry()
		}
		r, err := s.attempt(ctx, b, src)
		if err == nil {
			res = r
			return nil
		}
		if !domain.Retryable(err) {
			return err
		}
		if attempts <= s.maxRetries {
			s.logger.Warn(merge(fields, map[string]any{
				"attempt": attempts,
				"delay":   s.retryDelay.String(),
				"error":   err,
			}), "Sync attempt failed, retrying")
		}
		return retry.RetryableError(err)
	})

	elapsed := s.clock.Now().Sub(started)
	if err != nil {
		s.metrics.ObserveSync(metrics.OutcomeFailed, elapsed)
		s.logger.Error(merge(fields, map[string]any{
			"attempts": attempts,
			"kind":     domain.KindOf(err).String(),
			"error":    err,
		}), "Sync failed")
		return Result{Attempts: attempts}, fmt.Errorf("sync %s: %w", b.Name, err)
	}

	res.Attempts = attempts
	s.metrics.ObserveSync(res.Outcome.String(), elapsed)
	s.metrics.AddEntries(res.Counts.Added, res.Counts.Removed)
	s.logger.Info(merge(fields, map[string]any{
		"outcome":   res.Outcome.String(),
		"added":     res.Counts.Added,
		"removed":   res.Counts.Removed,
		"unchanged": res.Counts.Unchanged,
		"attempts":  attempts,
	}), "Sync finished")
	return res, nil
}

// attempt runs one pass through the state machine. Any failure after the new
// version exists deletes it before returning.
func (s *Syncer) attempt(ctx context.Context, b domain.Blocklist, src Source) (res Result, err error) {
	stage := StageStart
	var created *domain.Version
	defer func() {
		if err == nil {
			return
		}
		fields := merge(b.LogFields(), map[string]any{"stage": stage.String(), "error": err})
		if created != nil {
			s.rollback(ctx, *created, fields)
			stage = StageRolledBack
		}
		s.logger.Debug(merge(fields, map[string]any{"final_stage": stage.String()}), "sync_attempt_failed")
	}()

	previous, err := s.resolveBaseline(ctx, b)
	if err != nil {
		return Result{}, err
	}

	parsed, err := s.fetcher.Fetch(ctx, src.URL, src.Format)
	if err != nil {
		return Result{}, err
	}
	stage = StageParsed
	if parsed.Domains.IsEmpty() {
		s.logger.Warn(merge(b.LogFields(), map[string]any{"url": src.URL}), "List is empty")
	}
	s.logger.Info(merge(b.LogFields(), map[string]any{"url": src.URL, "entries": parsed.Domains.Len()}), "List parsed")

	v, err := s.versions.CreateVersion(ctx, domain.NewVersion(b.ID, parsed, src.CreatedOn))
	if err != nil {
		return Result{}, err
	}
	created = &v

	var baseline domain.DomainSet
	if previous != nil {
		full, err := s.versions.GetFullDomainSet(ctx, *previous)
		if err != nil {
			return Result{}, err
		}
		baseline = full.Domains
	}
	changes := diff.Compute(baseline, parsed.Domains)
	stage = StageDiffed
	s.logger.Debug(merge(b.LogFields(), changes.LogFields()), "diff_computed")

	stage = StageUploading
	var counts upload.Counts
	if previous == nil {
		counts, err = s.uploader.BulkLoad(ctx, v, parsed.Domains)
	} else {
		counts, err = s.uploader.Apply(ctx, upload.Plan{
			BlocklistID: b.ID,
			Previous:    *previous,
			Current:     v,
			Diff:        changes,
		})
	}
	if err != nil {
		return Result{}, err
	}

	if previous != nil && !counts.Changed() && counts.Unchanged > 0 {
		res, err = s.heartbeat(ctx, *previous, v, parsed, src)
	} else {
		res, err = s.promote(ctx, v)
	}
	if err != nil {
		return Result{}, err
	}
	stage = StageFinalized
	res.Counts = counts
	return res, nil
}

// resolveBaseline scans versions in the order the backend returns them. The
// first fully loaded one is the baseline; every version before it is a
// leftover from an interrupted attempt and is deleted. A nil baseline means
// first load.
func (s *Syncer) resolveBaseline(ctx context.Context, b domain.Blocklist) (*domain.Version, error) {
	versions, err := s.versions.ListVersions(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.FullyLoaded {
			return &v, nil
		}
		s.logger.Warn(v.LogFields(), "Deleting leftover version")
		if err := s.versions.DeleteVersion(ctx, v); err != nil {
			s.logger.Warn(merge(v.LogFields(), map[string]any{"error": err}), "Failed to delete leftover version")
		}
	}
	return nil, nil
}

// heartbeat records that unchanged content was seen again on the baseline and
// drops the redundant new version.
func (s *Syncer) heartbeat(ctx context.Context, previous, created domain.Version, parsed domain.ParsedList, src Source) (Result, error) {
	seen := s.clock.Now()
	if src.CreatedOn != nil {
		seen = *src.CreatedOn
	}
	updated, err := s.versions.UpdateVersion(ctx, previous.Heartbeat(parsed.ParsedSHA256, seen))
	if err != nil {
		return Result{}, err
	}
	if err := s.versions.DeleteVersion(ctx, created); err != nil {
		// left unloaded, so the next sync deletes it
		s.logger.Warn(merge(created.LogFields(), map[string]any{"error": err}), "Failed to delete unchanged version")
	}
	return Result{Outcome: OutcomeUnchanged, Version: updated}, nil
}

func (s *Syncer) promote(ctx context.Context, created domain.Version) (Result, error) {
	promoted, err := s.versions.UpdateVersion(ctx, created.Promoted())
	if err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeSynced, Version: promoted}, nil
}

// rollback deletes a version created by a failed attempt. Failure is logged
// only; the next sync deletes any survivor.
func (s *Syncer) rollback(ctx context.Context, created domain.Version, fields map[string]any) {
	s.logger.Warn(merge(fields, created.LogFields()), "Deleting version due to error")
	if err := s.versions.DeleteVersion(context.WithoutCancel(ctx), created); err != nil {
		s.logger.Warn(merge(created.LogFields(), map[string]any{"error": err}), "Rollback delete failed")
	}
}

// merge returns a new map holding a then b.
func merge(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

var errNoCatalog = errors.New("no catalog configured")
