package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"launchsync/internal/archive"
	"launchsync/internal/assert"
	"launchsync/internal/components/chrono"
	"launchsync/internal/components/telemetry"
	"launchsync/internal/launch"
	"launchsync/internal/notify"
	"launchsync/internal/syncer"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("launchsync/internal/application")

const (
	report_service_fetch    = "service.fetch"
	report_service_extract  = "service.extract"
	report_service_prepare  = "service.prepare"
	report_service_execute  = "service.execute"
	report_service_run      = "service.run"
	report_service_archive  = "service.archive"
	report_service_notify   = "service.notify"
	report_service_schedule = "service.schedule"
)

// ErrNoStore is returned by steps that need a store when none is configured.
var ErrNoStore = errors.New("no store configured")

// Fetcher downloads listing markup.
//
// note: fault injection point
type Fetcher interface {
	FetchFirst(ctx context.Context) (string, error)
	FetchAll(ctx context.Context) (string, error)
}

// Extractor turns listing markup into records.
type Extractor interface {
	ExtractHTML(r io.Reader) ([]launch.Record, error)
}

// History keeps extracted launches and executor runs.
type History interface {
	SaveLaunches(ctx context.Context, records []launch.Record) (archive.SaveResult, error)
	RecordRun(ctx context.Context, run archive.Run) error
}

// Notifier is told about the outcome of every Run.
type Notifier interface {
	Send(ctx context.Context, summary notify.Summary) error
}

type serviceConfig struct {
	dataDir  string
	pageSize int
	history  History
	notifier Notifier
}

type ServiceOption func(cfg *serviceConfig)

func WithDataDir(dir string) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.dataDir = dir
	}
}

func WithPageSize(pageSize int) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.pageSize = pageSize
	}
}

func WithHistory(history History) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.history = history
	}
}

func WithNotifier(notifier Notifier) ServiceOption {
	return func(cfg *serviceConfig) {
		cfg.notifier = notifier
	}
}

// Service runs the fetch, prepare and execute steps of a single source
// against a single store, every step leaves its output in the data
// directory so a later step can be run on its own. The store may be nil
// when only fetching.
type Service struct {
	source    string
	paths     Paths
	pageSize  int
	fetcher   Fetcher
	extractor Extractor
	store     syncer.Store
	history   History
	notifier  Notifier
	time      chrono.API
	tel       telemetry.API
}

func NewService(
	source string,
	fetcher Fetcher,
	extractor Extractor,
	store syncer.Store,
	clock chrono.API,
	tel telemetry.API,
	options ...ServiceOption,
) Service {
	assert.NotEmptyStr(source)
	assert.NotNil(fetcher)
	assert.NotNil(extractor)
	assert.NotNil(clock)
	assert.NotNil(tel)

	cfg := serviceConfig{dataDir: "data"}
	for _, opt := range options {
		opt(&cfg)
	}

	return Service{
		source:    source,
		paths:     NewPaths(cfg.dataDir),
		pageSize:  cfg.pageSize,
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		history:   cfg.history,
		notifier:  cfg.notifier,
		time:      clock,
		tel:       telemetry.NewScopedAPI("application", tel),
	}
}

func (s Service) Paths() Paths {
	return s.paths
}

type FetchResult struct {
	HTMLPath      string
	ProcessedPath string
	Records       []launch.Record
}

// Fetch downloads the listing, saves the raw markup and the extracted
// records. Failing to archive the records is only reported.
func (s Service) Fetch(ctx context.Context, allPages bool) (FetchResult, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.Bool("all_pages", allPages))

	var html string
	var err error
	if allPages {
		html, err = s.fetcher.FetchAll(ctx)
	} else {
		html, err = s.fetcher.FetchFirst(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch listing")
		s.tel.ReportBroken(report_service_fetch, err)
		return FetchResult{}, fmt.Errorf("fetch %s: %w", s.source, err)
	}

	result := FetchResult{
		HTMLPath:      s.paths.HTML(s.source, allPages),
		ProcessedPath: s.paths.Processed(s.source, allPages),
	}
	err = writeFile(result.HTMLPath, []byte(html))
	if err != nil {
		s.tel.ReportBroken(report_service_fetch, err, result.HTMLPath)
		return FetchResult{}, err
	}

	result.Records, err = s.extractor.ExtractHTML(strings.NewReader(html))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to extract records")
		s.tel.ReportBroken(report_service_extract, err)
		return FetchResult{}, fmt.Errorf("extract: %w", err)
	}
	err = launch.WriteFile(result.ProcessedPath, result.Records)
	if err != nil {
		s.tel.ReportBroken(report_service_extract, err, result.ProcessedPath)
		return FetchResult{}, err
	}
	s.tel.ReportCount(report_service_extract, int64(len(result.Records)))

	if s.history != nil {
		saved, err := s.history.SaveLaunches(ctx, result.Records)
		if err != nil {
			s.tel.ReportWarning(report_service_archive, err)
		} else {
			s.tel.ReportDebug("archived launches", "inserted", saved.Inserted, "updated", saved.Updated)
		}
	}

	span.SetAttributes(attribute.Int("records", len(result.Records)))
	return result, nil
}

type PrepareResult struct {
	Plan  syncer.Plan
	Batch syncer.Batch
}

// Prepare plans the records of a processed file and writes the records that
// are missing remotely as a batch next to it.
func (s Service) Prepare(ctx context.Context, processedPath string) (PrepareResult, error) {
	ctx, span := tracer.Start(ctx, "Prepare")
	defer span.End()

	records, err := launch.ReadFile(processedPath)
	if err != nil {
		s.tel.ReportBroken(report_service_prepare, err, processedPath)
		return PrepareResult{}, err
	}
	toSync := s.paths.ToSync(processedPath)

	if len(records) == 0 {
		s.tel.ReportDebug("no records to prepare", "file", processedPath)
		batch, err := syncer.WriteBatch(toSync, []launch.Record{})
		if err != nil {
			return PrepareResult{}, err
		}
		return PrepareResult{Plan: syncer.Plan{Source: s.source, Writes: []launch.Record{}}, Batch: batch}, nil
	}
	if s.store == nil {
		return PrepareResult{}, ErrNoStore
	}
	if records[0].SourceName != s.source {
		err = fmt.Errorf("%s holds records of %q, expected %q", processedPath, records[0].SourceName, s.source)
		s.tel.ReportBroken(report_service_prepare, err)
		return PrepareResult{}, err
	}

	plan, err := syncer.NewPlanner(s.store, s.pageSize, s.tel).Plan(ctx, s.source, records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to plan")
		return PrepareResult{}, err
	}
	batch, err := syncer.WriteBatch(toSync, plan.Writes)
	if err != nil {
		s.tel.ReportBroken(report_service_prepare, err, toSync)
		return PrepareResult{}, err
	}
	return PrepareResult{Plan: plan, Batch: batch}, nil
}

type ExecuteResult struct {
	RunID  string
	Batch  syncer.Batch
	Result syncer.Result
}

// Execute writes a batch file into the store, resuming from the progress
// file when it belongs to the same batch.
func (s Service) Execute(ctx context.Context, toSyncPath string, options syncer.ExecutorOptions) (ExecuteResult, error) {
	id, err := archive.NewRunID()
	if err != nil {
		return ExecuteResult{}, err
	}
	return s.execute(ctx, id, toSyncPath, options)
}

func (s Service) execute(ctx context.Context, id, toSyncPath string, options syncer.ExecutorOptions) (ExecuteResult, error) {
	ctx, span := tracer.Start(ctx, "Execute")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", id))

	if s.store == nil {
		return ExecuteResult{RunID: id}, ErrNoStore
	}
	batch, err := syncer.LoadBatch(toSyncPath)
	if err != nil {
		s.tel.ReportBroken(report_service_execute, err, toSyncPath)
		return ExecuteResult{RunID: id}, err
	}

	startedAt := s.time.Now()
	executor := syncer.NewExecutor(s.store, syncer.NewFileProgressStore(s.paths.Progress()), options, s.tel)
	result, execErr := executor.Execute(ctx, batch)
	if execErr != nil {
		span.RecordError(execErr)
		span.SetStatus(codes.Error, "execute failed")
	}

	if s.history != nil {
		run := archive.RunFromResult(id, startedAt, s.time.Now(), batch, result, execErr)
		err = s.history.RecordRun(ctx, run)
		if err != nil {
			s.tel.ReportWarning(report_service_archive, err, id)
		}
	}
	return ExecuteResult{RunID: id, Batch: batch, Result: result}, execErr
}

type RunOptions struct {
	AllPages bool
	Execute  syncer.ExecutorOptions
}

// Run performs fetch, prepare and execute once. A failing fetch or prepare
// stops the flow and is returned, a failing execute is only reported in the
// summary.
func (s Service) Run(ctx context.Context, options RunOptions) (notify.Summary, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	id, err := archive.NewRunID()
	if err != nil {
		return notify.Summary{}, err
	}
	summary := notify.Summary{
		RunID:     id,
		Source:    s.source,
		StartedAt: s.time.Now(),
	}
	s.tel.ReportDebug("starting run", "id", id, "all_pages", options.AllPages)

	fetched, err := s.Fetch(ctx, options.AllPages)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Errorf("fetch: %w", err))
		return s.finish(ctx, summary), err
	}
	summary.Extracted = len(fetched.Records)

	prepared, err := s.Prepare(ctx, fetched.ProcessedPath)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Errorf("prepare: %w", err))
		return s.finish(ctx, summary), err
	}
	summary.Planned = len(prepared.Batch.Records)

	executed, err := s.execute(ctx, id, prepared.Batch.Path, options.Execute)
	summary.Result = executed.Result
	if err != nil {
		s.tel.ReportBroken(report_service_run, err, id)
		summary.Errors = append(summary.Errors, fmt.Errorf("execute: %w", err))
	}

	summary = s.finish(ctx, summary)
	span.SetAttributes(
		attribute.Int("written", summary.Result.Written),
		attribute.Int("failed", summary.Result.Failed),
	)
	return summary, nil
}

func (s Service) finish(ctx context.Context, summary notify.Summary) notify.Summary {
	summary.FinishedAt = s.time.Now()
	if s.notifier == nil {
		return summary
	}
	err := s.notifier.Send(ctx, summary)
	if err != nil {
		s.tel.ReportWarning(report_service_notify, err, summary.RunID)
	}
	return summary
}

// ScheduleSpec converts a schedule config into a cron spec.
func ScheduleSpec(config ScheduleConfig) (string, error) {
	switch config.Mode {
	case "daily":
		return chrono.DailySpec(config.Hour, config.Minute)
	case "weekly":
		return chrono.WeeklySpec(config.Weekday, config.Hour, config.Minute)
	}
	return "", fmt.Errorf("unknown schedule mode %q, expected daily or weekly", config.Mode)
}

// Schedule registers Run on the cron, runs are never returned as errors
// since nothing is waiting on them.
func (s Service) Schedule(ctx context.Context, cron chrono.CronAPI, config ScheduleConfig, options RunOptions) (string, error) {
	spec, err := ScheduleSpec(config)
	if err != nil {
		return "", err
	}
	options.AllPages = config.AllPages
	err = cron.Cron(spec, func() {
		if ctx.Err() != nil {
			return
		}
		_, err := s.Run(ctx, options)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.tel.ReportBroken(report_service_schedule, err)
		}
	})
	if err != nil {
		return "", fmt.Errorf("register %q: %w", spec, err)
	}
	return spec, nil
}

func writeFile(path string, contents []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0777)
	if err != nil {
		return err
	}
	return os.WriteFile(path, contents, 0644)
}
