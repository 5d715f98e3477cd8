package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"launchsync/internal/archive"
	"launchsync/internal/components/chrono"
	"launchsync/internal/components/telemetry"
	"launchsync/internal/launch"
	"launchsync/internal/launchtime"
	"launchsync/internal/notify"
	"launchsync/internal/scrapers/nextspaceflight"
	"launchsync/internal/syncer"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	html  string
	err   error
	first int
	all   int
}

func (f *fakeFetcher) FetchFirst(ctx context.Context) (string, error) {
	f.first++
	return f.html, f.err
}

func (f *fakeFetcher) FetchAll(ctx context.Context) (string, error) {
	f.all++
	return f.html, f.err
}

type memStore struct {
	mutex    sync.Mutex
	records  []syncer.RemoteRecord
	queryErr error
	failing  map[string]bool
	created  []string
}

func (s *memStore) Query(ctx context.Context, q syncer.Query) ([]syncer.RemoteRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []syncer.RemoteRecord
	for _, r := range s.records {
		if r.Source == q.Source {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) Create(ctx context.Context, r launch.Record) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.failing[r.Mission] {
		return errors.New("code 1254045: field validation failed")
	}
	s.records = append(s.records, syncer.RemoteRecord{
		TimestampMs: r.TimestampMs,
		Source:      r.SourceName,
		Mission:     r.Mission,
	})
	s.created = append(s.created, r.Mission)
	return nil
}

type fakeHistory struct {
	launches []launch.Record
	runs     []archive.Run
}

func (h *fakeHistory) SaveLaunches(ctx context.Context, records []launch.Record) (archive.SaveResult, error) {
	h.launches = append(h.launches, records...)
	return archive.SaveResult{Inserted: len(records)}, nil
}

func (h *fakeHistory) RecordRun(ctx context.Context, run archive.Run) error {
	h.runs = append(h.runs, run)
	return nil
}

type fakeNotifier struct {
	summaries []notify.Summary
}

func (n *fakeNotifier) Send(ctx context.Context, summary notify.Summary) error {
	n.summaries = append(n.summaries, summary)
	return nil
}

type fakeCron struct {
	specs     []string
	callbacks []func()
}

func (c *fakeCron) Cron(spec string, callback func()) error {
	c.specs = append(c.specs, spec)
	c.callbacks = append(c.callbacks, callback)
	return nil
}

type testEnv struct {
	dir      string
	fetcher  *fakeFetcher
	store    *memStore
	history  *fakeHistory
	notifier *fakeNotifier
	tel      *telemetry.Recorder
	service  Service
}

func newTestEnv(t *testing.T) testEnv {
	html, err := os.ReadFile("../scrapers/nextspaceflight/testdata/launches.html")
	require.NoError(t, err)

	clock := chrono.NewFixed(time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC))
	target := time.FixedZone("UTC+8", 8*60*60)
	tel := telemetry.NewRecorder()
	extractor := nextspaceflight.NewExtractor(launchtime.NewNormalizer(target, clock), clock, tel)

	env := testEnv{
		dir:      t.TempDir(),
		fetcher:  &fakeFetcher{html: string(html)},
		store:    &memStore{failing: map[string]bool{}},
		history:  &fakeHistory{},
		notifier: &fakeNotifier{},
		tel:      tel,
	}
	env.service = NewService(
		nextspaceflight.SourceName,
		env.fetcher,
		extractor,
		env.store,
		clock,
		tel,
		WithDataDir(env.dir),
		WithPageSize(500),
		WithHistory(env.history),
		WithNotifier(env.notifier),
	)
	return env
}

func TestPaths(t *testing.T) {
	paths := NewPaths("data")
	require.Equal(t, "nextspaceflight_com", SafeName("nextspaceflight.com"))
	require.Equal(t, "data/html/nextspaceflight_com_latest_downloaded.html", paths.HTML("nextspaceflight.com", false))
	require.Equal(t, "data/html/nextspaceflight_com_latest_downloaded_all_pages.html", paths.HTML("nextspaceflight.com", true))
	require.Equal(t, "data/processed_launches/nextspaceflight_com_processed.json", paths.Processed("nextspaceflight.com", false))
	require.Equal(
		t,
		"data/to_sync_launches/nextspaceflight_com_processed_all_pages_to_sync.json",
		paths.ToSync(paths.Processed("nextspaceflight.com", true)),
	)
	require.Equal(t, "data/sync_progress.json", paths.Progress())
}

func TestFetch(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.service.Fetch(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 1, env.fetcher.first)
	require.Equal(t, 0, env.fetcher.all)
	require.Len(t, result.Records, 6)

	html, err := os.ReadFile(result.HTMLPath)
	require.NoError(t, err)
	require.Equal(t, env.fetcher.html, string(html))

	processed, err := launch.ReadFile(result.ProcessedPath)
	require.NoError(t, err)
	if diff := cmp.Diff(result.Records, processed); diff != "" {
		t.Fatal(diff)
	}
	require.Len(t, env.history.launches, 6)

	all, err := env.service.Fetch(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, 1, env.fetcher.all)
	require.Equal(t, filepath.Join(env.dir, "processed_launches", "nextspaceflight_com_processed_all_pages.json"), all.ProcessedPath)
}

func TestFetchFailure(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.err = errors.New("503 service unavailable")

	_, err := env.service.Fetch(context.Background(), false)
	require.ErrorIs(t, err, env.fetcher.err)
	require.NoFileExists(t, env.service.Paths().HTML(nextspaceflight.SourceName, false))
	require.Len(t, env.tel.Filter(telemetry.LevelBroken, report_service_fetch), 1)
}

func TestPrepare(t *testing.T) {
	env := newTestEnv(t)
	env.store.records = []syncer.RemoteRecord{{
		TimestampMs: launch.Timestamp(1694835480000),
		Source:      nextspaceflight.SourceName,
		Mission:     "starlink group 6-17",
	}}

	fetched, err := env.service.Fetch(context.Background(), false)
	require.NoError(t, err)

	prepared, err := env.service.Prepare(context.Background(), fetched.ProcessedPath)
	require.NoError(t, err)
	require.Equal(t, 6, prepared.Plan.Input)
	require.Equal(t, 5, prepared.Plan.Eligible)
	require.Equal(t, 1, prepared.Plan.Existing)
	require.Equal(
		t,
		filepath.Join(env.dir, "to_sync_launches", "nextspaceflight_com_processed_to_sync.json"),
		prepared.Batch.Path,
	)

	var missions []string
	for _, r := range prepared.Batch.Records {
		missions = append(missions, r.Mission)
	}
	require.Equal(t, []string{
		"Integrated Flight Test",
		"We Will Never Desert You",
		"Flight VA999",
		"Maiden Flight",
	}, missions)
}

func TestPrepareEmpty(t *testing.T) {
	env := newTestEnv(t)
	processed := filepath.Join(env.dir, "processed_launches", "empty_processed.json")
	require.NoError(t, launch.WriteFile(processed, nil))
	env.store.queryErr = errors.New("must not be queried")

	prepared, err := env.service.Prepare(context.Background(), processed)
	require.NoError(t, err)
	require.Empty(t, prepared.Batch.Records)

	contents, err := os.ReadFile(prepared.Batch.Path)
	require.NoError(t, err)
	require.Equal(t, "[]\n", string(contents))
}

func TestPrepareFailures(t *testing.T) {
	env := newTestEnv(t)
	fetched, err := env.service.Fetch(context.Background(), false)
	require.NoError(t, err)

	env.store.queryErr = errors.New("code 91402: not found")
	_, err = env.service.Prepare(context.Background(), fetched.ProcessedPath)
	require.ErrorIs(t, err, env.store.queryErr)
	require.NoFileExists(t, env.service.Paths().ToSync(fetched.ProcessedPath))

	other := filepath.Join(env.dir, "processed_launches", "other_processed.json")
	require.NoError(t, launch.WriteFile(other, []launch.Record{{Mission: "x", SourceName: "other.com"}}))
	_, err = env.service.Prepare(context.Background(), other)
	require.ErrorContains(t, err, `"other.com"`)

	_, err = env.service.Prepare(context.Background(), filepath.Join(env.dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun(t *testing.T) {
	env := newTestEnv(t)
	env.store.failing["Flight VA999"] = true

	summary, err := env.service.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 6, summary.Extracted)
	require.Equal(t, 5, summary.Planned)
	require.Equal(t, syncer.StateCompleted, summary.Result.State)
	require.Equal(t, 4, summary.Result.Written)
	require.Equal(t, 1, summary.Result.Failed)
	require.Equal(t, []string{"Flight VA999"}, summary.Result.FailedMissions)
	require.Empty(t, summary.Errors)
	require.NoFileExists(t, env.service.Paths().Progress())

	require.Len(t, env.notifier.summaries, 1)
	require.Equal(t, summary.RunID, env.notifier.summaries[0].RunID)
	require.Len(t, env.history.runs, 1)
	require.Equal(t, summary.RunID, env.history.runs[0].ID)
	require.Equal(t, "completed", env.history.runs[0].State)

	// everything but the failed record is stored now
	env.store.failing = map[string]bool{}
	summary, err = env.service.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Planned)
	require.Equal(t, 1, summary.Result.Written)
	require.Equal(t, []string{
		"Integrated Flight Test",
		"Starlink Group 6-17",
		"We Will Never Desert You",
		"Maiden Flight",
		"Flight VA999",
	}, env.store.created)
}

func TestRunFetchFailure(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.err = errors.New("connection reset")

	summary, err := env.service.Run(context.Background(), RunOptions{AllPages: true})
	require.Error(t, err)
	require.Equal(t, 1, env.fetcher.all)
	require.Len(t, summary.Errors, 1)
	require.True(t, summary.Failed())
	require.Len(t, env.notifier.summaries, 1)
	require.Empty(t, env.history.runs)
}

func TestRunExecuteFailureIsReported(t *testing.T) {
	env := newTestEnv(t)
	// a directory where the progress file should be makes every checkpoint fail
	require.NoError(t, os.MkdirAll(env.service.Paths().Progress(), 0777))

	summary, err := env.service.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, summary.Errors, 1)
	require.ErrorContains(t, summary.Errors[0], "execute: ")
	require.Equal(t, syncer.StateAborted, summary.Result.State)
	require.Empty(t, env.store.created)
	require.Len(t, env.tel.Filter(telemetry.LevelBroken, report_service_run), 1)

	require.Len(t, env.history.runs, 1)
	require.NotEmpty(t, env.history.runs[0].Error)
}

func TestScheduleSpec(t *testing.T) {
	testCases := []struct {
		config   ScheduleConfig
		expected string
		fails    bool
	}{
		{config: ScheduleConfig{Mode: "daily", Hour: 3}, expected: "0 3 * * *"},
		{config: ScheduleConfig{Mode: "weekly", Weekday: 0, Hour: 3, Minute: 30}, expected: "30 3 * * 1"},
		{config: ScheduleConfig{Mode: "weekly", Weekday: 6, Hour: 23, Minute: 59}, expected: "59 23 * * 0"},
		{config: ScheduleConfig{Mode: "weekly", Weekday: 7}, fails: true},
		{config: ScheduleConfig{Mode: "daily", Hour: 24}, fails: true},
		{config: ScheduleConfig{Mode: "hourly"}, fails: true},
	}

	for _, test := range testCases {
		spec, err := ScheduleSpec(test.config)
		if test.fails {
			require.Error(t, err, test.config)
			continue
		}
		require.NoError(t, err, test.config)
		require.Equal(t, test.expected, spec, test.config)
	}
}

func TestSchedule(t *testing.T) {
	env := newTestEnv(t)
	cron := &fakeCron{}

	spec, err := env.service.Schedule(
		context.Background(),
		cron,
		ScheduleConfig{Mode: "weekly", Weekday: 2, Hour: 3, AllPages: true},
		RunOptions{Execute: syncer.ExecutorOptions{PreWriteCheck: true}},
	)
	require.NoError(t, err)
	require.Equal(t, "0 3 * * 3", spec)
	require.Equal(t, []string{spec}, cron.specs)

	cron.callbacks[0]()
	require.Equal(t, 1, env.fetcher.all)
	require.Len(t, env.store.created, 5)
	require.Len(t, env.notifier.summaries, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = env.service.Schedule(ctx, cron, ScheduleConfig{Mode: "daily"}, RunOptions{})
	require.NoError(t, err)
	cron.callbacks[1]()
	require.Equal(t, 1, env.fetcher.all)
	require.Equal(t, 0, env.fetcher.first)

	_, err = env.service.Schedule(context.Background(), cron, ScheduleConfig{Mode: "monthly"}, RunOptions{})
	require.Error(t, err)
}

func TestFetchOnlyWithoutStore(t *testing.T) {
	env := newTestEnv(t)
	clock := chrono.NewFixed(time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC))
	extractor := nextspaceflight.NewExtractor(launchtime.NewNormalizer(time.UTC, clock), clock, env.tel)
	service := NewService(nextspaceflight.SourceName, env.fetcher, extractor, nil, clock, env.tel, WithDataDir(env.dir))

	fetched, err := service.Fetch(context.Background(), false)
	require.NoError(t, err)
	_, err = service.Prepare(context.Background(), fetched.ProcessedPath)
	require.ErrorIs(t, err, ErrNoStore)
	_, err = service.Execute(context.Background(), fetched.ProcessedPath, syncer.ExecutorOptions{})
	require.ErrorIs(t, err, ErrNoStore)
}
