package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"launchsync/internal/assert"
	"launchsync/internal/components/telemetry"
	"launchsync/internal/launch"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const (
	report_executor_create          = "executor.create"
	report_executor_pre_write_check = "executor.pre-write-check"
	report_executor_progress        = "executor.progress"
	report_executor_written         = "executor.written"
	report_executor_skipped         = "executor.skipped"
	report_executor_failed          = "executor.failed"
)

// ErrCheckpoint wraps every failure to persist progress, these abort a run.
var ErrCheckpoint = errors.New("checkpoint")

type State int

const (
	StateNotStarted State = iota
	StateInProgress
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result describes a single Execute call.
type Result struct {
	State State
	Total int
	// Start is the index the run resumed from.
	Start int
	// NextIndex is the first index that has not been processed.
	NextIndex int
	// Attempted lists the indices that were processed in this run.
	Attempted      []int
	Written        int
	Skipped        int
	Failed         int
	FailedMissions []string
}

type ExecutorOptions struct {
	// Delay is the minimum time between two records.
	Delay time.Duration
	// PreWriteCheck queries the store for each record right before writing
	// it and skips records that already exist.
	PreWriteCheck bool
}

type Executor struct {
	store    Store
	progress ProgressStore
	options  ExecutorOptions
	tel      telemetry.API
}

func NewExecutor(store Store, progress ProgressStore, options ExecutorOptions, tel telemetry.API) Executor {
	assert.NotNil(store)
	assert.NotNil(progress)
	assert.NotNil(tel)
	return Executor{
		store:    store,
		progress: progress,
		options:  options,
		tel:      telemetry.NewScopedAPI("syncer", tel),
	}
}

type run struct {
	Executor
	batch  Batch
	result Result
}

func (r *run) transition(state State) {
	r.tel.ReportDebug("executor transition", r.result.State.String(), state.String(), r.result.NextIndex)
	r.result.State = state
}

func (r *run) abort(err error) (Result, error) {
	r.transition(StateAborted)
	r.tel.ReportBroken(report_executor_progress, err)
	return r.result, err
}

func (r *run) checkpoint(next int) error {
	err := r.progress.Save(Progress{
		SourceFile: r.batch.Path,
		FileHash:   r.batch.Hash,
		NextIndex:  next,
	})
	if err != nil {
		return fmt.Errorf("%w: save next_index %d: %w", ErrCheckpoint, next, err)
	}
	return nil
}

// Execute writes a batch to the store, resuming from stored progress when it
// belongs to the same batch contents.
//
// Failing to create a record is reported and skipped, failing to persist
// progress aborts the run. A cancelled context stops between two records
// and leaves progress in place.
func (e Executor) Execute(ctx context.Context, batch Batch) (Result, error) {
	ctx, span := tracer.Start(ctx, "Execute")
	defer span.End()

	r := &run{
		Executor: e,
		batch:    batch,
		result:   Result{State: StateNotStarted, Total: len(batch.Records)},
	}

	start, err := r.resumeIndex()
	if err != nil {
		span.SetStatus(codes.Error, "load progress")
		return r.abort(err)
	}
	r.result.Start = start
	r.result.NextIndex = start
	span.SetAttributes(
		attribute.Int("total", r.result.Total),
		attribute.Int("start", start),
	)

	if start >= len(batch.Records) {
		return r.complete()
	}

	limit := rate.Inf
	if e.options.Delay > 0 {
		limit = rate.Every(e.options.Delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	r.transition(StateInProgress)
	for i := start; i < len(batch.Records); i++ {
		err = limiter.Wait(ctx)
		if err != nil {
			return r.result, err
		}

		err = r.checkpoint(i)
		if err != nil {
			span.SetStatus(codes.Error, "pre-write checkpoint")
			return r.abort(err)
		}

		r.process(ctx, i)

		err = r.checkpoint(i + 1)
		if err != nil {
			span.SetStatus(codes.Error, "post-write checkpoint")
			return r.abort(err)
		}
		r.result.NextIndex = i + 1
	}

	return r.complete()
}

func (r *run) resumeIndex() (int, error) {
	progress, found, err := r.progress.Load()
	if errors.Is(err, ErrCorruptProgress) {
		r.tel.ReportWarning(report_executor_progress, err, "starting from the beginning")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: load: %w", ErrCheckpoint, err)
	}
	if !found {
		return 0, nil
	}
	if !progress.Matches(r.batch) {
		r.tel.ReportDebug("progress belongs to another batch, starting from the beginning", progress.SourceFile)
		return 0, nil
	}
	r.tel.ReportDebug("resuming batch", r.batch.Path, progress.NextIndex)
	return progress.NextIndex, nil
}

func (r *run) complete() (Result, error) {
	if r.result.NextIndex > r.result.Total {
		r.result.NextIndex = r.result.Total
	}

	progress, found, err := r.progress.Load()
	if err != nil && !errors.Is(err, ErrCorruptProgress) {
		return r.abort(fmt.Errorf("%w: load: %w", ErrCheckpoint, err))
	}
	if !found || progress.SourceFile == r.batch.Path || errors.Is(err, ErrCorruptProgress) {
		err = r.progress.Delete()
		if err != nil {
			return r.abort(fmt.Errorf("%w: delete: %w", ErrCheckpoint, err))
		}
	}

	r.transition(StateCompleted)
	r.tel.ReportCount(report_executor_written, int64(r.result.Written))
	r.tel.ReportCount(report_executor_skipped, int64(r.result.Skipped))
	r.tel.ReportCount(report_executor_failed, int64(r.result.Failed))
	return r.result, nil
}

func (r *run) process(ctx context.Context, i int) {
	record := r.batch.Records[i]
	r.result.Attempted = append(r.result.Attempted, i)

	if r.options.PreWriteCheck && r.exists(ctx, i, record) {
		r.tel.ReportDebug("record already stored, skipping", i+1, record.Mission)
		r.result.Skipped++
		return
	}

	r.tel.ReportDebug("creating record", i+1, r.result.Total, record.Mission)
	err := r.store.Create(ctx, record)
	if err != nil {
		r.tel.ReportBroken(report_executor_create, err, i+1, record.Mission)
		r.result.Failed++
		r.result.FailedMissions = append(r.result.FailedMissions, record.Mission)
		return
	}
	r.result.Written++
}

// exists re-queries the store for a record, a failing query is reported and
// treated as "not stored" so the write is still attempted. Records without a
// timestamp are looked up among the stored rows without one.
func (r *run) exists(ctx context.Context, i int, record launch.Record) bool {
	if record.SourceName == "" {
		r.tel.ReportWarning(
			report_executor_pre_write_check,
			fmt.Sprintf("record %d has no source, skipping the check", i+1),
			record.Mission,
		)
		return false
	}

	remote, err := r.store.Query(ctx, Query{
		Source:  record.SourceName,
		At:      record.TimestampMs,
		Untimed: record.TimestampMs == nil,
		Fields:  KeyFields,
	})
	if err != nil {
		r.tel.ReportBroken(report_executor_pre_write_check, err, i+1, record.Mission)
		return false
	}

	key := record.Key()
	for _, existing := range remote {
		if existing.Key() == key {
			return true
		}
	}
	return false
}
