package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"launchsync/internal/assert"
	"launchsync/internal/components/chrono"
	"launchsync/internal/components/telemetry"
	"launchsync/internal/launch"
	"launchsync/internal/syncer"

	"github.com/mazen160/go-random"
)

//go:embed schema.sql
var Schema string

const (
	report_archive_save_launches = "archive.save-launches"
	report_archive_record_run    = "archive.record-run"
)

// Archive keeps every launch ever extracted and a history of sync runs in a
// sql database.
type Archive struct {
	db   *sql.DB
	time chrono.API
	tel  telemetry.API
}

// New creates the schema if it does not exist yet.
func New(ctx context.Context, db *sql.DB, clock chrono.API, tel telemetry.API) (Archive, error) {
	assert.NotNil(db)
	assert.NotNil(clock)
	assert.NotNil(tel)

	_, err := db.ExecContext(ctx, Schema)
	if err != nil {
		return Archive{}, fmt.Errorf("create schema: %w", err)
	}
	return Archive{
		db:   db,
		time: clock,
		tel:  telemetry.NewScopedAPI("archive", tel),
	}, nil
}

type SaveResult struct {
	Inserted int
	Updated  int
}

// SaveLaunches upserts records by their business key, a record seen again
// overwrites the stored values and keeps its first_seen time.
func (a Archive) SaveLaunches(ctx context.Context, records []launch.Record) (SaveResult, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, err
	}
	defer tx.Rollback()

	now := a.time.Now().UnixMilli()
	var result SaveResult
	for _, r := range records {
		key := r.Key()

		var exists int
		err = tx.QueryRowContext(
			ctx,
			"select count(*) from launch where source_name = ? and timestamp_ms = ? and mission_key = ?",
			key.Source, key.Millis, key.Mission,
		).Scan(&exists)
		if err != nil {
			a.tel.ReportBroken(report_archive_save_launches, err, r.Mission)
			return SaveResult{}, err
		}

		_, err = tx.ExecContext(
			ctx,
			`insert into launch (
				source_name, timestamp_ms, mission_key, has_timestamp,
				mission, vehicle, pad_location, status, mission_description, provider,
				first_seen, last_seen
			) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			on conflict (source_name, timestamp_ms, mission_key) do update set
				has_timestamp = excluded.has_timestamp,
				mission = excluded.mission,
				vehicle = excluded.vehicle,
				pad_location = excluded.pad_location,
				status = excluded.status,
				mission_description = excluded.mission_description,
				provider = excluded.provider,
				last_seen = excluded.last_seen`,
			key.Source, key.Millis, key.Mission, r.TimestampMs != nil,
			r.Mission, r.Vehicle, r.PadLocation, string(r.Status), r.MissionDescription, r.Provider,
			now, now,
		)
		if err != nil {
			a.tel.ReportBroken(report_archive_save_launches, err, r.Mission)
			return SaveResult{}, err
		}

		if exists > 0 {
			result.Updated++
		} else {
			result.Inserted++
		}
	}

	err = tx.Commit()
	if err != nil {
		return SaveResult{}, err
	}
	a.tel.ReportCount("archive.inserted", int64(result.Inserted))
	return result, nil
}

// Launches returns the newest stored launches of a source, an empty source
// selects every source. Launches without a timestamp come last.
func (a Archive) Launches(ctx context.Context, source string, limit int) ([]launch.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := a.db.QueryContext(
		ctx,
		`select
			source_name, timestamp_ms, has_timestamp, mission, vehicle,
			pad_location, status, mission_description, provider
		from launch
		where ? = '' or source_name = ?
		order by has_timestamp desc, timestamp_ms desc, mission_key
		limit ?`,
		source, source, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []launch.Record
	for rows.Next() {
		var r launch.Record
		var millis int64
		var hasTimestamp bool
		var status string
		err = rows.Scan(
			&r.SourceName, &millis, &hasTimestamp, &r.Mission, &r.Vehicle,
			&r.PadLocation, &status, &r.MissionDescription, &r.Provider,
		)
		if err != nil {
			return nil, err
		}
		if hasTimestamp {
			r.TimestampMs = launch.Timestamp(millis)
		}
		r.Status = launch.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Run is a single recorded executor run.
type Run struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	SourceFile     string
	FileHash       string
	State          string
	Total          int
	Start          int
	NextIndex      int
	Written        int
	Skipped        int
	Failed         int
	FailedMissions []string
	// Error is empty when the run did not return an error.
	Error string
}

// NewRunID returns a short random id for a run.
func NewRunID() (string, error) {
	return random.String(12)
}

// RunFromResult describes the executor result for a batch as a Run.
func RunFromResult(id string, startedAt, finishedAt time.Time, batch syncer.Batch, result syncer.Result, err error) Run {
	run := Run{
		ID:             id,
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
		SourceFile:     batch.Path,
		FileHash:       batch.Hash,
		State:          result.State.String(),
		Total:          result.Total,
		Start:          result.Start,
		NextIndex:      result.NextIndex,
		Written:        result.Written,
		Skipped:        result.Skipped,
		Failed:         result.Failed,
		FailedMissions: result.FailedMissions,
	}
	if err != nil {
		run.Error = err.Error()
	}
	return run
}

func (a Archive) RecordRun(ctx context.Context, run Run) error {
	failed := run.FailedMissions
	if failed == nil {
		failed = []string{}
	}
	failedJson, err := json.Marshal(failed)
	if err != nil {
		return err
	}

	_, err = a.db.ExecContext(
		ctx,
		`insert into sync_run (
			id, started_at, finished_at, source_file, file_hash, state,
			total, start_index, next_index, written, skipped, failed,
			failed_missions, error
		) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.SourceFile, run.FileHash, run.State,
		run.Total, run.Start, run.NextIndex, run.Written, run.Skipped, run.Failed,
		string(failedJson), run.Error,
	)
	if err != nil {
		a.tel.ReportBroken(report_archive_record_run, err, run.ID)
		return err
	}
	return nil
}

// Runs returns the most recent runs first.
func (a Archive) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := a.db.QueryContext(
		ctx,
		`select
			id, started_at, finished_at, source_file, file_hash, state,
			total, start_index, next_index, written, skipped, failed,
			failed_missions, error
		from sync_run
		order by started_at desc, id
		limit ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	location := a.time.Location()
	var out []Run
	for rows.Next() {
		var run Run
		var startedAt, finishedAt int64
		var failedJson string
		err = rows.Scan(
			&run.ID, &startedAt, &finishedAt, &run.SourceFile, &run.FileHash, &run.State,
			&run.Total, &run.Start, &run.NextIndex, &run.Written, &run.Skipped, &run.Failed,
			&failedJson, &run.Error,
		)
		if err != nil {
			return nil, err
		}
		run.StartedAt = time.UnixMilli(startedAt).In(location)
		run.FinishedAt = time.UnixMilli(finishedAt).In(location)

		err = json.Unmarshal([]byte(failedJson), &run.FailedMissions)
		if err != nil {
			a.tel.ReportWarning(report_archive_record_run, fmt.Errorf("decode failed missions: %w", err), run.ID)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
