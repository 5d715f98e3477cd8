package syncer

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"launchsync/internal/components/telemetry"
	"launchsync/internal/launch"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func missions(records []launch.Record) []string {
	out := []string{}
	for _, r := range records {
		out = append(out, r.Mission)
	}
	return out
}

func TestPlan(t *testing.T) {
	store := &memStore{rows: []RemoteRecord{
		{TimestampMs: ts(2000), Source: testSource, Mission: "  starlink 6-17 "},
		{TimestampMs: ts(3000), Source: "other.com", Mission: "Crew-7"},
		{Source: testSource, Mission: "Maiden Flight"},
	}}
	planner := NewPlanner(store, 500, telemetry.Discard{})

	records := []launch.Record{
		rec("Late", ts(9000), launch.StatusSuccess),
		rec("Unparsed", nil, launch.StatusSuccess),
		rec("Starlink 6-17", ts(2000), launch.StatusSuccess),
		rec("Crew-7", ts(3000), launch.StatusSuccess),
		rec("Someday", nil, launch.StatusScheduled),
		rec("Early", ts(1000), launch.StatusFailure),
		rec("EARLY", ts(1000), launch.StatusFailure),
		rec("Maiden Flight", nil, launch.StatusTBD),
		rec("Maybe", nil, launch.StatusTBD),
	}

	plan, err := planner.Plan(context.Background(), testSource, records)
	require.NoError(t, err)

	require.Equal(t, []string{"Early", "Crew-7", "Late", "Someday", "Maybe"}, missions(plan.Writes))
	require.Equal(t, len(records), plan.Input)
	require.Equal(t, 8, plan.Eligible)
	require.Equal(t, 2, plan.Existing)
	require.NotNil(t, plan.Bound)
	require.Equal(t, int64(1000), *plan.Bound)

	require.Len(t, store.queries, 2)
	query := store.queries[0]
	require.Equal(t, testSource, query.Source)
	require.Equal(t, int64(1000), *query.From)
	require.Nil(t, query.At)
	require.False(t, query.Untimed)
	require.Equal(t, KeyFields, query.Fields)
	require.Equal(t, 500, query.PageSize)

	untimed := store.queries[1]
	require.Equal(t, testSource, untimed.Source)
	require.Nil(t, untimed.From)
	require.True(t, untimed.Untimed)
	require.Equal(t, KeyFields, untimed.Fields)
}

func TestPlanRepeatedRunsKeepUntimedRecordsUnique(t *testing.T) {
	store := &memStore{}
	planner := NewPlanner(store, 500, telemetry.Discard{})
	records := []launch.Record{
		launchRecord("Crew-7", ts(1000)),
		rec("Maiden Flight", nil, launch.StatusTBD),
	}

	for run := 0; run < 3; run++ {
		plan, err := planner.Plan(context.Background(), testSource, records)
		require.NoError(t, err)
		for _, r := range plan.Writes {
			require.NoError(t, store.Create(context.Background(), r))
		}
	}
	require.Equal(t, []string{"Crew-7", "Maiden Flight"}, store.createdMissions())
}

func TestPlanTimedOnlySkipsUntimedQuery(t *testing.T) {
	store := &memStore{}
	planner := NewPlanner(store, 500, telemetry.Discard{})

	_, err := planner.Plan(context.Background(), testSource, []launch.Record{
		launchRecord("Crew-7", ts(1000)),
	})
	require.NoError(t, err)
	require.Len(t, store.queries, 1)
	require.False(t, store.queries[0].Untimed)
}

func TestPlanWithoutTimestamps(t *testing.T) {
	store := &memStore{rows: []RemoteRecord{
		{Source: testSource, Mission: "Maiden Flight"},
	}}
	planner := NewPlanner(store, 500, telemetry.Discard{})

	plan, err := planner.Plan(context.Background(), testSource, []launch.Record{
		rec("Someday", nil, launch.StatusScheduled),
		rec("maiden flight", nil, launch.StatusTBD),
	})
	require.NoError(t, err)
	require.Nil(t, plan.Bound)
	require.Len(t, store.queries, 1)
	require.Nil(t, store.queries[0].From)
	require.Equal(t, []string{"Someday"}, missions(plan.Writes))
}

func TestPlanNothingEligible(t *testing.T) {
	store := &memStore{}
	planner := NewPlanner(store, 500, telemetry.Discard{})

	plan, err := planner.Plan(context.Background(), testSource, []launch.Record{
		rec("Unparsed", nil, launch.StatusUnknown),
	})
	require.NoError(t, err)
	require.Empty(t, store.queries)
	require.NotNil(t, plan.Writes)
	require.Empty(t, plan.Writes)
}

func TestPlanQueryFailure(t *testing.T) {
	queryErr := errors.New("401 unauthorized")
	store := &memStore{queryErr: queryErr}
	recorder := telemetry.NewRecorder()
	planner := NewPlanner(store, 500, recorder)

	_, err := planner.Plan(context.Background(), testSource, []launch.Record{
		launchRecord("Crew-7", ts(1000)),
	})
	require.ErrorIs(t, err, queryErr)
	require.Len(t, recorder.Filter(telemetry.LevelBroken, report_planner_query), 1)
}

func launchRecord(mission string, ms *int64) launch.Record {
	return rec(mission, ms, launch.StatusSuccess)
}

func TestPlanAbsentAndZeroTimestamps(t *testing.T) {
	// absent and zero only collapse inside the business key
	store := &memStore{rows: []RemoteRecord{
		{TimestampMs: ts(0), Source: testSource, Mission: "Epoch"},
	}}
	planner := NewPlanner(store, 500, telemetry.Discard{})

	records := []launch.Record{
		rec("Epoch", nil, launch.StatusTBD),
		rec("Epoch Two", ts(0), launch.StatusSuccess),
	}
	plan, err := planner.Plan(context.Background(), testSource, records)
	require.NoError(t, err)
	require.Equal(t, []string{"Epoch Two"}, missions(plan.Writes))
	require.NotNil(t, plan.Writes[0].TimestampMs)
	require.Equal(t, int64(0), *plan.Writes[0].TimestampMs)
	require.Nil(t, records[0].TimestampMs)
}

func TestPlanNearDuplicate(t *testing.T) {
	store := &memStore{rows: []RemoteRecord{
		{TimestampMs: ts(5000), Source: testSource, Mission: "Starlink Group 6-17"},
	}}
	recorder := telemetry.NewRecorder()
	planner := NewPlanner(store, 500, recorder)

	plan, err := planner.Plan(context.Background(), testSource, []launch.Record{
		launchRecord("Starlink Group 6-17a", ts(5000)),
		launchRecord("Transporter 9", ts(5000)),
	})
	require.NoError(t, err)
	require.Len(t, plan.Writes, 2)
	require.Len(t, recorder.Filter(telemetry.LevelWarning, report_planner_near_duplicate), 1)
}

func genPlannerRecord() gopter.Gen {
	return gen.Struct(reflect.TypeOf(launch.Record{}), map[string]gopter.Gen{
		"Mission":     gen.OneConstOf("Crew-7", "crew-7", "Starlink 6-17", "Transporter 9", " Ax-3 "),
		"TimestampMs": gen.PtrOf(gen.Int64Range(-5, 5)),
		"Status": gen.OneConstOf(
			launch.StatusSuccess,
			launch.StatusScheduled,
			launch.StatusTBD,
			launch.StatusUnknown,
		),
		"SourceName": gen.Const(testSource),
	})
}

func genRemote() gopter.Gen {
	return gen.Struct(reflect.TypeOf(RemoteRecord{}), map[string]gopter.Gen{
		"TimestampMs": gen.PtrOf(gen.Int64Range(-5, 5)),
		"Source":      gen.Const(testSource),
		"Mission":     gen.OneConstOf("Crew-7", "STARLINK 6-17", "Ax-3"),
	})
}

func TestPlannerProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("planning twice yields the same write set", prop.ForAll(
		func(records []launch.Record, remote []RemoteRecord) bool {
			planner := NewPlanner(&memStore{rows: remote}, 500, telemetry.Discard{})
			first, err := planner.Plan(context.Background(), testSource, records)
			if err != nil {
				return false
			}
			second, err := planner.Plan(context.Background(), testSource, records)
			if err != nil {
				return false
			}
			return cmp.Equal(first.Writes, second.Writes)
		},
		gen.SliceOf(genPlannerRecord()),
		gen.SliceOf(genRemote()),
	))

	properties.Property("planned writes are new, unique, eligible and ordered", prop.ForAll(
		func(records []launch.Record, remote []RemoteRecord) bool {
			planner := NewPlanner(&memStore{rows: remote}, 500, telemetry.Discard{})
			plan, err := planner.Plan(context.Background(), testSource, records)
			if err != nil {
				return false
			}

			stored := map[launch.Key]bool{}
			for _, r := range remote {
				if plan.Bound != nil && r.Key().Millis < *plan.Bound {
					continue
				}
				stored[r.Key()] = true
			}
			seen := map[launch.Key]bool{}
			for i, w := range plan.Writes {
				if !w.Eligible() || stored[w.Key()] || seen[w.Key()] {
					return false
				}
				seen[w.Key()] = true
				if i > 0 && launch.CompareTimestamp(plan.Writes[i-1], w) > 0 {
					return false
				}
			}

			// every eligible record is either stored or planned
			for _, r := range records {
				if r.Eligible() && !stored[r.Key()] && !seen[r.Key()] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genPlannerRecord()),
		gen.SliceOf(genRemote()),
	))

	properties.TestingRun(t)
}
