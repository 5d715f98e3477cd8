package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"launchsync/internal/components/chrono"
	"launchsync/internal/components/telemetry"
	"launchsync/internal/launch"
	"launchsync/internal/syncer"
	configlibsql "launchsync/lib/configutil/libsql"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T, clock chrono.API) Archive {
	db, err := configlibsql.Struct{File: ":memory:"}.OpenDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	archive, err := New(context.Background(), db, clock, telemetry.Discard{})
	require.NoError(t, err)
	return archive
}

func record(mission string, ms *int64, status launch.Status) launch.Record {
	return launch.Record{
		Mission:            mission,
		Vehicle:            "Falcon 9 Block 5",
		PadLocation:        "SLC-40, Cape Canaveral SFS, Florida, USA",
		TimestampMs:        ms,
		Status:             status,
		MissionDescription: launch.NotAvailable,
		SourceName:         "nextspaceflight.com",
		Provider:           "SpaceX",
	}
}

func TestSaveLaunches(t *testing.T) {
	clock := chrono.NewFixed(time.Date(2023, time.September, 18, 10, 0, 0, 0, time.UTC))
	archive := newTestArchive(t, clock)
	ctx := context.Background()

	result, err := archive.SaveLaunches(ctx, []launch.Record{
		record("Starlink Group 6-17", launch.Timestamp(1695005220000), launch.StatusSuccess),
		record("Crew-7", launch.Timestamp(1692959220000), launch.StatusSuccess),
		record("Maiden Flight", nil, launch.StatusTBD),
		record("Epoch", launch.Timestamp(0), launch.StatusUnknown),
	})
	require.NoError(t, err)
	require.Equal(t, SaveResult{Inserted: 4}, result)

	// same key, case and whitespace of the mission differ
	updated := record(" CREW-7 ", launch.Timestamp(1692959220000), launch.StatusFailure)
	result, err = archive.SaveLaunches(ctx, []launch.Record{updated})
	require.NoError(t, err)
	require.Equal(t, SaveResult{Updated: 1}, result)

	launches, err := archive.Launches(ctx, "nextspaceflight.com", 0)
	require.NoError(t, err)
	expected := []launch.Record{
		record("Starlink Group 6-17", launch.Timestamp(1695005220000), launch.StatusSuccess),
		updated,
		record("Epoch", launch.Timestamp(0), launch.StatusUnknown),
		record("Maiden Flight", nil, launch.StatusTBD),
	}
	diff := cmp.Diff(expected, launches)
	if diff != "" {
		t.Fatal(diff)
	}

	limited, err := archive.Launches(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	other, err := archive.Launches(ctx, "other.com", 0)
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestRuns(t *testing.T) {
	clock := chrono.NewFixed(time.Date(2023, time.September, 18, 10, 0, 0, 0, time.UTC))
	archive := newTestArchive(t, clock)
	ctx := context.Background()

	batch := syncer.Batch{Path: "data/to_sync_launches/nextspaceflight_com_to_sync.json", Hash: "abc"}
	first := RunFromResult(
		"first",
		clock.Now(), clock.Now().Add(time.Minute),
		batch,
		syncer.Result{
			State:          syncer.StateCompleted,
			Total:          3,
			NextIndex:      3,
			Written:        2,
			Failed:         1,
			FailedMissions: []string{"Starlink 6-17"},
		},
		nil,
	)
	second := RunFromResult(
		"second",
		clock.Now().Add(time.Hour), clock.Now().Add(time.Hour),
		batch,
		syncer.Result{State: syncer.StateAborted, Total: 3, Start: 1, NextIndex: 1},
		errors.New("checkpoint: disk full"),
	)
	require.NoError(t, archive.RecordRun(ctx, first))
	require.NoError(t, archive.RecordRun(ctx, second))
	require.Error(t, archive.RecordRun(ctx, first))

	runs, err := archive.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	require.Equal(t, "second", runs[0].ID)
	require.Equal(t, "aborted", runs[0].State)
	require.Equal(t, "checkpoint: disk full", runs[0].Error)
	require.Empty(t, runs[0].FailedMissions)

	require.Equal(t, "first", runs[1].ID)
	require.Equal(t, "completed", runs[1].State)
	require.Equal(t, []string{"Starlink 6-17"}, runs[1].FailedMissions)
	require.True(t, first.StartedAt.Equal(runs[1].StartedAt))
	require.Equal(t, time.Minute, runs[1].FinishedAt.Sub(runs[1].StartedAt))
	require.Equal(t, batch.Path, runs[1].SourceFile)
	require.Equal(t, 2, runs[1].Written)
}

func TestNewRunID(t *testing.T) {
	a, err := NewRunID()
	require.NoError(t, err)
	b, err := NewRunID()
	require.NoError(t, err)
	require.Len(t, a, 12)
	require.NotEqual(t, a, b)
}
