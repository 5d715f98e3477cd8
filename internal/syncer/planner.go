package syncer

import (
	"context"
	"fmt"
	"slices"

	"launchsync/internal/assert"
	"launchsync/internal/components/telemetry"
	"launchsync/internal/launch"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("launchsync/internal/syncer")

const (
	report_planner_query          = "planner.query"
	report_planner_near_duplicate = "planner.near-duplicate"
	report_planner_input          = "planner.input"
	report_planner_eligible       = "planner.eligible"
	report_planner_existing       = "planner.existing"
	report_planner_planned        = "planner.planned"
)

// NearDuplicateThreshold is the Jaro-Winkler similarity above which a new
// mission name is flagged as a probable rename of a stored one.
const NearDuplicateThreshold = 0.92

// Plan is the outcome of comparing extracted records with the remote store.
type Plan struct {
	Source string
	// Bound is the lower time bound used for the remote query, nil when no
	// eligible record had a timestamp.
	Bound    *int64
	Input    int
	Eligible int
	Existing int
	// Writes is sorted ascending by timestamp with untimed records last.
	Writes []launch.Record
}

type Planner struct {
	store    Store
	pageSize int
	tel      telemetry.API
}

func NewPlanner(store Store, pageSize int, tel telemetry.API) Planner {
	assert.NotNil(store)
	assert.NotNil(tel)
	return Planner{
		store:    store,
		pageSize: pageSize,
		tel:      telemetry.NewScopedAPI("syncer", tel),
	}
}

// Plan computes the records of `source` that are not stored remotely yet.
//
// A failing remote query fails the plan, it is never read as "nothing is
// stored".
func (p Planner) Plan(ctx context.Context, source string, records []launch.Record) (Plan, error) {
	ctx, span := tracer.Start(ctx, "Plan")
	defer span.End()

	plan := Plan{
		Source: source,
		Input:  len(records),
		Writes: []launch.Record{},
	}

	var eligible []launch.Record
	hasUntimed := false
	for _, r := range records {
		if !r.Eligible() {
			continue
		}
		eligible = append(eligible, r)
		if r.TimestampMs == nil {
			hasUntimed = true
			continue
		}
		if plan.Bound == nil || *r.TimestampMs < *plan.Bound {
			plan.Bound = launch.Timestamp(*r.TimestampMs)
		}
	}
	plan.Eligible = len(eligible)
	p.tel.ReportCount(report_planner_input, int64(plan.Input))
	p.tel.ReportCount(report_planner_eligible, int64(plan.Eligible))

	if len(eligible) == 0 {
		p.tel.ReportCount(report_planner_planned, 0)
		return plan, nil
	}
	if plan.Bound == nil {
		p.tel.ReportDebug("no timestamps among eligible records, querying without a time bound")
	}

	queries := []Query{{
		Source:   source,
		From:     plan.Bound,
		Fields:   KeyFields,
		PageSize: p.pageSize,
	}}
	// stored rows without a timestamp never pass a time bound
	if plan.Bound != nil && hasUntimed {
		queries = append(queries, Query{
			Source:   source,
			Untimed:  true,
			Fields:   KeyFields,
			PageSize: p.pageSize,
		})
	}

	var remote []RemoteRecord
	for _, q := range queries {
		rows, err := p.store.Query(ctx, q)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "remote query failed")
			p.tel.ReportBroken(report_planner_query, err)
			return Plan{}, fmt.Errorf("query existing records: %w", err)
		}
		remote = append(remote, rows...)
	}

	existing := make(map[launch.Key]struct{}, len(remote))
	missionsAt := make(map[int64][]string)
	for _, r := range remote {
		key := r.Key()
		existing[key] = struct{}{}
		missionsAt[key.Millis] = append(missionsAt[key.Millis], key.Mission)
	}
	plan.Existing = len(existing)
	p.tel.ReportCount(report_planner_existing, int64(plan.Existing))

	for _, r := range eligible {
		key := r.Key()
		if _, ok := existing[key]; ok {
			continue
		}
		// later records with the same key within the input are duplicates too
		existing[key] = struct{}{}
		plan.Writes = append(plan.Writes, r)
		p.checkNearDuplicate(key, missionsAt[key.Millis])
	}

	slices.SortStableFunc(plan.Writes, launch.CompareTimestamp)

	p.tel.ReportCount(report_planner_planned, int64(len(plan.Writes)))
	span.SetAttributes(
		attribute.Int("input", plan.Input),
		attribute.Int("existing", plan.Existing),
		attribute.Int("planned", len(plan.Writes)),
	)
	return plan, nil
}

func (p Planner) checkNearDuplicate(key launch.Key, storedMissions []string) {
	for _, stored := range storedMissions {
		similarity := matchr.JaroWinkler(key.Mission, stored, false)
		if similarity >= NearDuplicateThreshold {
			p.tel.ReportWarning(
				report_planner_near_duplicate,
				fmt.Sprintf("%q looks like stored %q (%.2f)", key.Mission, stored, similarity),
			)
			return
		}
	}
}
