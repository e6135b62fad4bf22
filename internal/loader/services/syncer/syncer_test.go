package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/blocklist-loader/internal/loader/common/clock"
	"github.com/haukened/blocklist-loader/internal/loader/domain"
	"github.com/haukened/blocklist-loader/internal/loader/services/diff"
	"github.com/haukened/blocklist-loader/internal/loader/services/upload"
)

// Mock implementations for testing
type MockVersions struct {
	mock.Mock
}

func (m *MockVersions) ListVersions(ctx context.Context, id uuid.UUID) ([]domain.Version, error) {
	args := m.Called(ctx, id)
	vs, _ := args.Get(0).([]domain.Version)
	return vs, args.Error(1)
}

func (m *MockVersions) CreateVersion(ctx context.Context, v domain.Version) (domain.Version, error) {
	args := m.Called(ctx, v)
	return args.Get(0).(domain.Version), args.Error(1)
}

func (m *MockVersions) UpdateVersion(ctx context.Context, v domain.Version) (domain.Version, error) {
	args := m.Called(ctx, v)
	if args.Error(1) != nil {
		return domain.Version{}, args.Error(1)
	}
	return v, nil
}

func (m *MockVersions) DeleteVersion(ctx context.Context, v domain.Version) error {
	return m.Called(ctx, v).Error(0)
}

func (m *MockVersions) GetFullDomainSet(ctx context.Context, v domain.Version) (domain.ParsedList, error) {
	args := m.Called(ctx, v)
	return args.Get(0).(domain.ParsedList), args.Error(1)
}

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, url string, format domain.Format) (domain.ParsedList, error) {
	args := m.Called(ctx, url, format)
	return args.Get(0).(domain.ParsedList), args.Error(1)
}

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Apply(ctx context.Context, plan upload.Plan) (upload.Counts, error) {
	args := m.Called(ctx, plan)
	return args.Get(0).(upload.Counts), args.Error(1)
}

func (m *MockUploader) BulkLoad(ctx context.Context, v domain.Version, set domain.DomainSet) (upload.Counts, error) {
	args := m.Called(ctx, v, set)
	return args.Get(0).(upload.Counts), args.Error(1)
}

type recordingMetrics struct {
	outcomes []string
	attempts int
	retries  int
	added    int
	removed  int
}

func (r *recordingMetrics) ObserveSync(o string, _ time.Duration) { r.outcomes = append(r.outcomes, o) }
func (r *recordingMetrics) AddAttempt()                           { r.attempts++ }
func (r *recordingMetrics) AddRetry()                             { r.retries++ }
func (r *recordingMetrics) AddEntries(a, rm int)                  { r.added += a; r.removed += rm }

type fixture struct {
	versions *MockVersions
	fetcher  *MockFetcher
	uploader *MockUploader
	metrics  *recordingMetrics
	clock    *clock.MockClock
	syncer   *Syncer
	list     domain.Blocklist
}

func newFixture(maxRetries int) *fixture {
	f := &fixture{
		versions: new(MockVersions),
		fetcher:  new(MockFetcher),
		uploader: new(MockUploader),
		metrics:  &recordingMetrics{},
		clock:    &clock.MockClock{CurrentTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		list: domain.Blocklist{
			ID:          uuid.New(),
			Name:        "ads",
			Format:      domain.FormatDomain,
			DownloadURL: "http://lists.example/ads.txt",
		},
	}
	f.syncer = NewSyncer(Options{
		Versions:   f.versions,
		Fetcher:    f.fetcher,
		Uploader:   f.uploader,
		Clock:      f.clock,
		Metrics:    f.metrics,
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
	})
	return f
}

func parsedOf(names ...string) domain.ParsedList {
	return domain.NewParsedList(domain.NewDomainSetFromStrings(names...), "raw-"+uuid.NewString())
}

func TestSync_FirstLoadUsesBulkAndPromotes(t *testing.T) {
	f := newFixture(0)
	parsed := parsedOf("a.com", "b.com")
	created := domain.NewVersion(f.list.ID, parsed, nil)
	created.ID = uuid.New()

	f.versions.On("ListVersions", mock.Anything, f.list.ID).Return([]domain.Version{}, nil)
	f.fetcher.On("Fetch", mock.Anything, f.list.DownloadURL, domain.FormatDomain).Return(parsed, nil)
	f.versions.On("CreateVersion", mock.Anything, mock.MatchedBy(func(v domain.Version) bool {
		return v.NumEntries == 2 && !v.FullyLoaded && v.CreatedOn == nil
	})).Return(created, nil)
	f.uploader.On("BulkLoad", mock.Anything, created, parsed.Domains).Return(upload.Counts{Added: 2, Batches: 1}, nil)
	f.versions.On("UpdateVersion", mock.Anything, created.Promoted()).Return(nil, nil)

	res, err := f.syncer.Sync(context.Background(), f.list, CurrentSource(f.list))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, res.Outcome)
	assert.True(t, res.Version.FullyLoaded)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []string{"synced"}, f.metrics.outcomes)
	assert.Equal(t, 2, f.metrics.added)
	f.versions.AssertNotCalled(t, "GetFullDomainSet", mock.Anything, mock.Anything)
	f.versions.AssertExpectations(t)
	f.uploader.AssertExpectations(t)
}

func TestSync_DiffAgainstBaseline(t *testing.T) {
	f := newFixture(0)
	prev := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID, FullyLoaded: true}
	parsed := parsedOf("b.com", "c.com", "d.com")
	created := domain.NewVersion(f.list.ID, parsed, nil)
	created.ID = uuid.New()

	f.versions.On("ListVersions", mock.Anything, f.list.ID).Return([]domain.Version{prev}, nil)
	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(parsed, nil)
	f.versions.On("CreateVersion", mock.Anything, mock.Anything).Return(created, nil)
	f.versions.On("GetFullDomainSet", mock.Anything, prev).Return(parsedOf("a.com", "b.com", "c.com"), nil)
	f.uploader.On("Apply", mock.Anything, mock.MatchedBy(func(p upload.Plan) bool {
		return p.Previous.ID == prev.ID && p.Current.ID == created.ID &&
			assert.ObjectsAreEqual([]string{"d.com"}, p.Diff.Added.Strings()) &&
			assert.ObjectsAreEqual([]string{"a.com"}, p.Diff.Removed.Strings())
	})).Return(upload.Counts{Added: 1, Removed: 1, Unchanged: 2, Batches: 1}, nil)
	f.versions.On("UpdateVersion", mock.Anything, created.Promoted()).Return(nil, nil)

	res, err := f.syncer.Sync(context.Background(), f.list, CurrentSource(f.list))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, res.Outcome)
	assert.Equal(t, created.ID, res.Version.ID)
	assert.Equal(t, upload.Counts{Added: 1, Removed: 1, Unchanged: 2, Batches: 1}, res.Counts)
	f.versions.AssertNotCalled(t, "DeleteVersion", mock.Anything, mock.Anything)
	f.uploader.AssertExpectations(t)
}

func TestSync_UnchangedHeartbeatsBaseline(t *testing.T) {
	f := newFixture(0)
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID, ParsedSHA256: "old", LastSeen: &old, FullyLoaded: true}
	parsed := parsedOf("x.com")
	created := domain.NewVersion(f.list.ID, parsed, nil)
	created.ID = uuid.New()

	f.versions.On("ListVersions", mock.Anything, f.list.ID).Return([]domain.Version{prev}, nil)
	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(parsed, nil)
	f.versions.On("CreateVersion", mock.Anything, mock.Anything).Return(created, nil)
	f.versions.On("GetFullDomainSet", mock.Anything, prev).Return(parsedOf("x.com"), nil)
	f.uploader.On("Apply", mock.Anything, mock.Anything).Return(upload.Counts{Unchanged: 1}, nil)
	f.versions.On("UpdateVersion", mock.Anything, prev.Heartbeat(parsed.ParsedSHA256, f.clock.Now())).Return(nil, nil)
	f.versions.On("DeleteVersion", mock.Anything, created).Return(nil)

	res, err := f.syncer.Sync(context.Background(), f.list, CurrentSource(f.list))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	assert.Equal(t, prev.ID, res.Version.ID)
	require.NotNil(t, res.Version.LastSeen)
	assert.Equal(t, f.clock.Now(), *res.Version.LastSeen)
	assert.Equal(t, parsed.ParsedSHA256, res.Version.ParsedSHA256)
	assert.Equal(t, []string{"unchanged"}, f.metrics.outcomes)
	f.versions.AssertExpectations(t)
}

func TestSync_UnchangedDeleteFailureIsNotFatal(t *testing.T) {
	f := newFixture(0)
	prev := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID, FullyLoaded: true}
	parsed := parsedOf("x.com")
	created := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID}

	f.versions.On("ListVersions", mock.Anything, f.list.ID).Return([]domain.Version{prev}, nil)
	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(parsed, nil)
	f.versions.On("CreateVersion", mock.Anything, mock.Anything).Return(created, nil)
	f.versions.On("GetFullDomainSet", mock.Anything, prev).Return(parsed, nil)
	f.uploader.On("Apply", mock.Anything, mock.Anything).Return(upload.Counts{Unchanged: 1}, nil)
	f.versions.On("UpdateVersion", mock.Anything, mock.Anything).Return(nil, nil)
	f.versions.On("DeleteVersion", mock.Anything, created).Return(errors.New("backend down"))

	res, err := f.syncer.Sync(context.Background(), f.list, CurrentSource(f.list))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
}

func TestSync_EmptyBaselineAndEmptyListPromotes(t *testing.T) {
	f := newFixture(0)
	prev := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID, FullyLoaded: true}
	parsed := parsedOf()
	created := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID}

	f.versions.On("ListVersions", mock.Anything, f.list.ID).Return([]domain.Version{prev}, nil)
	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(parsed, nil)
	f.versions.On("CreateVersion", mock.Anything, mock.Anything).Return(created, nil)
	f.versions.On("GetFullDomainSet", mock.Anything, prev).Return(parsedOf(), nil)
	f.uploader.On("Apply", mock.Anything, mock.Anything).Return(upload.Counts{}, nil)
	f.versions.On("UpdateVersion", mock.Anything, created.Promoted()).Return(nil, nil)

	res, err := f.syncer.Sync(context.Background(), f.list, CurrentSource(f.list))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, res.Outcome)
}

func TestResolveBaseline_DeletesLeftoversBeforeBaseline(t *testing.T) {
	f := newFixture(0)
	leftover1 := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID}
	leftover2 := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID}
	baseline := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID, FullyLoaded: true}
	history := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID, FullyLoaded: true}
	after := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID}

	f.versions.On("ListVersions", mock.Anything, f.list.ID).
		Return([]domain.Version{leftover1, leftover2, baseline, history, after}, nil)
	f.versions.On("DeleteVersion", mock.Anything, leftover1).Return(nil)
	f.versions.On("DeleteVersion", mock.Anything, leftover2).Return(errors.New("delete failed"))

	got, err := f.syncer.resolveBaseline(context.Background(), f.list)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, baseline.ID, got.ID)
	f.versions.AssertNumberOfCalls(t, "DeleteVersion", 2)
}

func TestResolveBaseline_NoneLoaded(t *testing.T) {
	f := newFixture(0)
	leftover := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID}
	f.versions.On("ListVersions", mock.Anything, f.list.ID).Return([]domain.Version{leftover}, nil)
	f.versions.On("DeleteVersion", mock.Anything, leftover).Return(nil)

	got, err := f.syncer.resolveBaseline(context.Background(), f.list)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSync_UploadFailureRollsBackAndRetries(t *testing.T) {
	f := newFixture(2)
	prev := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID, FullyLoaded: true}
	parsed := parsedOf("a.com", "new.com")
	created := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID}
	uploadErr := &domain.APIError{Op: "open entry period", StatusCode: 500}

	f.versions.On("ListVersions", mock.Anything, f.list.ID).Return([]domain.Version{prev}, nil)
	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(parsed, nil)
	f.versions.On("CreateVersion", mock.Anything, mock.Anything).Return(created, nil)
	f.versions.On("GetFullDomainSet", mock.Anything, prev).Return(parsedOf("a.com"), nil)
	f.uploader.On("Apply", mock.Anything, mock.Anything).Return(upload.Counts{}, uploadErr)
	f.versions.On("DeleteVersion", mock.Anything, created).Return(nil)

	res, err := f.syncer.Sync(context.Background(), f.list, CurrentSource(f.list))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAPI)
	assert.Equal(t, 3, res.Attempts)
	f.versions.AssertNumberOfCalls(t, "CreateVersion", 3)
	f.versions.AssertNumberOfCalls(t, "DeleteVersion", 3)
	f.versions.AssertNotCalled(t, "UpdateVersion", mock.Anything, mock.Anything)
	assert.Equal(t, 3, f.metrics.attempts)
	assert.Equal(t, 2, f.metrics.retries)
	assert.Equal(t, []string{"failed"}, f.metrics.outcomes)
}

func TestSync_RecoversOnRetry(t *testing.T) {
	f := newFixture(3)
	parsed := parsedOf("a.com")
	created := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID}

	f.versions.On("ListVersions", mock.Anything, f.list.ID).Return([]domain.Version{}, nil)
	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ParsedList{}, &domain.APIError{Op: "fetch list", StatusCode: 503}).Once()
	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(parsed, nil)
	f.versions.On("CreateVersion", mock.Anything, mock.Anything).Return(created, nil).Once()
	f.uploader.On("BulkLoad", mock.Anything, created, parsed.Domains).Return(upload.Counts{Added: 1, Batches: 1}, nil)
	f.versions.On("UpdateVersion", mock.Anything, created.Promoted()).Return(nil, nil)

	res, err := f.syncer.Sync(context.Background(), f.list, CurrentSource(f.list))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	// the failed attempt never created a version, so nothing to roll back
	f.versions.AssertNotCalled(t, "DeleteVersion", mock.Anything, mock.Anything)
}

func TestSync_ConfigErrorIsNotRetried(t *testing.T) {
	f := newFixture(3)
	f.versions.On("ListVersions", mock.Anything, f.list.ID).Return([]domain.Version{}, nil)
	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ParsedList{}, domain.ConfigError("unknown list format: %q", "adblock"))

	res, err := f.syncer.Sync(context.Background(), f.list, Source{URL: "http://x", Format: "adblock"})
	require.Error(t, err)
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
	assert.Equal(t, 1, res.Attempts)
	f.fetcher.AssertNumberOfCalls(t, "Fetch", 1)
	f.versions.AssertNotCalled(t, "CreateVersion", mock.Anything, mock.Anything)
}

func TestSync_PromoteFailureRollsBack(t *testing.T) {
	f := newFixture(0)
	parsed := parsedOf("a.com")
	created := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID}

	f.versions.On("ListVersions", mock.Anything, f.list.ID).Return([]domain.Version{}, nil)
	f.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(parsed, nil)
	f.versions.On("CreateVersion", mock.Anything, mock.Anything).Return(created, nil)
	f.uploader.On("BulkLoad", mock.Anything, created, parsed.Domains).Return(upload.Counts{Added: 1}, nil)
	f.versions.On("UpdateVersion", mock.Anything, mock.Anything).Return(nil, &domain.APIError{Op: "update", StatusCode: 500})
	f.versions.On("DeleteVersion", mock.Anything, created).Return(errors.New("still down"))

	_, err := f.syncer.Sync(context.Background(), f.list, CurrentSource(f.list))
	require.Error(t, err)
	f.versions.AssertCalled(t, "DeleteVersion", mock.Anything, created)
}

func TestSync_HistoricalSourceStampsCommitTime(t *testing.T) {
	f := newFixture(0)
	commit := time.Unix(1_500_000_000, 0).UTC()
	prev := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID, FullyLoaded: true}
	parsed := parsedOf("x.com")
	created := domain.Version{ID: uuid.New(), BlocklistID: f.list.ID}

	f.versions.On("ListVersions", mock.Anything, f.list.ID).Return([]domain.Version{prev}, nil)
	f.fetcher.On("Fetch", mock.Anything, "http://history/1", domain.FormatDomain).Return(parsed, nil)
	f.versions.On("CreateVersion", mock.Anything, mock.MatchedBy(func(v domain.Version) bool {
		return v.IsHistorical() && v.CreatedOn.Equal(commit) && v.LastSeen.Equal(commit)
	})).Return(created, nil)
	f.versions.On("GetFullDomainSet", mock.Anything, prev).Return(parsed, nil)
	f.uploader.On("Apply", mock.Anything, mock.Anything).Return(upload.Counts{Unchanged: 1}, nil)
	f.versions.On("UpdateVersion", mock.Anything, prev.Heartbeat(parsed.ParsedSHA256, commit)).Return(nil, nil)
	f.versions.On("DeleteVersion", mock.Anything, created).Return(nil)

	_, err := f.syncer.Sync(context.Background(), f.list, Source{URL: "http://history/1", Format: domain.FormatDomain, CreatedOn: &commit})
	require.NoError(t, err)
	f.versions.AssertExpectations(t)
}

func TestSync_CanceledContextStopsRetrying(t *testing.T) {
	f := newFixture(3)
	ctx, cancel := context.WithCancel(context.Background())
	f.versions.On("ListVersions", mock.Anything, f.list.ID).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled)

	_, err := f.syncer.Sync(ctx, f.list, CurrentSource(f.list))
	require.Error(t, err)
	f.versions.AssertNumberOfCalls(t, "ListVersions", 1)
}

func TestStageAndOutcomeStrings(t *testing.T) {
	assert.Equal(t, "START", StageStart.String())
	assert.Equal(t, "ROLLED_BACK", StageRolledBack.String())
	assert.Equal(t, "Stage(42)", Stage(42).String())
	assert.Equal(t, "unchanged", OutcomeUnchanged.String())
	assert.Equal(t, "Outcome(9)", Outcome(9).String())
}

func TestDiffAndUploadCountsAgree(t *testing.T) {
	// the orchestrator decides on counts, which must mirror the partition
	r := diff.Compute(domain.NewDomainSetFromStrings("a.com"), domain.NewDomainSetFromStrings("a.com"))
	c := upload.Counts{Added: r.Added.Len(), Removed: r.Removed.Len(), Unchanged: r.Unchanged.Len()}
	assert.False(t, c.Changed())
	assert.Equal(t, 1, c.Unchanged)
}
