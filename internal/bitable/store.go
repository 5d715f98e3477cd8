package bitable

import (
	"context"
	"fmt"
	"strconv"

	"launchsync/internal/assert"
	"launchsync/internal/components/telemetry"
	"launchsync/internal/launch"
	"launchsync/internal/syncer"
)

const (
	report_store_decode  = "store.decode"
	report_store_no_time = "store.no-timestamp"
)

const dayMillis = 24 * 60 * 60 * 1000

var columns = map[string]string{
	syncer.FieldTimestamp: ColumnTimestamp,
	syncer.FieldSource:    ColumnSource,
	syncer.FieldMission:   ColumnMission,
}

// Store exposes a launch table as a syncer.Store.
type Store struct {
	client *Client
	tel    telemetry.API
}

func NewStore(client *Client, tel telemetry.API) Store {
	assert.NotNil(client)
	assert.NotNil(tel)
	return Store{
		client: client,
		tel:    telemetry.NewScopedAPI("bitable", tel),
	}
}

// QueryFilter translates a query into a search filter.
//
// Date conditions only compare whole days, so a From bound is widened by a
// day to stay inclusive and callers compare exact timestamps themselves.
func QueryFilter(q syncer.Query) *Filter {
	filter := &Filter{Conjunction: "and"}
	if q.Source != "" {
		filter.Conditions = append(filter.Conditions, Condition{
			FieldName: ColumnSource,
			Operator:  "is",
			Value:     []string{q.Source},
		})
	}
	if q.From != nil {
		filter.Conditions = append(filter.Conditions, Condition{
			FieldName: ColumnTimestamp,
			Operator:  "isGreater",
			Value:     []string{"ExactDate", strconv.FormatInt(*q.From-dayMillis, 10)},
		})
	}
	if q.At != nil {
		filter.Conditions = append(filter.Conditions, Condition{
			FieldName: ColumnTimestamp,
			Operator:  "is",
			Value:     []string{"ExactDate", strconv.FormatInt(*q.At, 10)},
		})
	}
	if q.Untimed {
		filter.Conditions = append(filter.Conditions, Condition{
			FieldName: ColumnTimestamp,
			Operator:  "isEmpty",
			Value:     []string{},
		})
	}
	if len(filter.Conditions) == 0 {
		return nil
	}
	return filter
}

func columnNames(fields []string) ([]string, error) {
	var names []string
	for _, field := range fields {
		name, ok := columns[field]
		if !ok {
			return nil, fmt.Errorf("unknown field %q", field)
		}
		names = append(names, name)
	}
	return names, nil
}

// RemoteRecordFrom decodes the key columns of a stored row.
func RemoteRecordFrom(record Record) (syncer.RemoteRecord, error) {
	millis, err := MillisValue(record.Fields[ColumnTimestamp])
	if err != nil {
		return syncer.RemoteRecord{}, err
	}
	source, err := TextValue(record.Fields[ColumnSource])
	if err != nil {
		return syncer.RemoteRecord{}, err
	}
	mission, err := TextValue(record.Fields[ColumnMission])
	if err != nil {
		return syncer.RemoteRecord{}, err
	}
	return syncer.RemoteRecord{
		TimestampMs: millis,
		Source:      source,
		Mission:     mission,
	}, nil
}

func (s Store) Query(ctx context.Context, q syncer.Query) ([]syncer.RemoteRecord, error) {
	fieldNames, err := columnNames(q.Fields)
	if err != nil {
		return nil, err
	}

	records, err := s.client.Search(ctx, SearchOptions{
		Filter:     QueryFilter(q),
		FieldNames: fieldNames,
		PageSize:   q.PageSize,
	})
	if err != nil {
		return nil, err
	}

	out := make([]syncer.RemoteRecord, 0, len(records))
	for _, record := range records {
		remote, err := RemoteRecordFrom(record)
		if err != nil {
			s.tel.ReportWarning(report_store_decode, err, record.RecordID)
			continue
		}
		out = append(out, remote)
	}
	return out, nil
}

func (s Store) Create(ctx context.Context, r launch.Record) error {
	if (r.TimestampMs == nil || *r.TimestampMs == 0) && !r.Status.Pending() {
		s.tel.ReportWarning(
			report_store_no_time,
			fmt.Sprintf("launch %q from %q has no timestamp", r.Mission, r.SourceName),
		)
	}

	_, err := s.client.Create(ctx, FieldsFromRecord(r))
	if err != nil {
		return fmt.Errorf("create %q: %w", r.Mission, err)
	}
	return nil
}
