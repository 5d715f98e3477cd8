package syncer

import (
	"context"

	"launchsync/internal/launch"
)

// Logical names of the fields a Query may ask for, stores map them to their
// own column names.
const (
	FieldTimestamp = "timestamp_ms"
	FieldSource    = "source_name"
	FieldMission   = "mission"
)

// KeyFields are the fields needed to build a business key.
var KeyFields = []string{FieldTimestamp, FieldSource, FieldMission}

// Query selects remote records of a single source.
type Query struct {
	Source string
	// From, if set, only selects records at or after this timestamp. Stores
	// may return records before it, but must never drop a record after it.
	From *int64
	// At, if set, only selects records at this timestamp. The same leniency
	// as From applies.
	At *int64
	// Untimed, if set, only selects records without a timestamp.
	Untimed  bool
	Fields   []string
	PageSize int
}

// RemoteRecord is what a store knows about an already stored launch, reduced
// to plain values.
type RemoteRecord struct {
	TimestampMs *int64
	Source      string
	Mission     string
}

func (r RemoteRecord) Key() launch.Key {
	return launch.NewKey(r.TimestampMs, r.Source, r.Mission)
}

// Store is the remote table launches are synced into.
//
// note: fault injection point
type Store interface {
	// Query returns every matching record, paging is handled by the store.
	Query(ctx context.Context, q Query) ([]RemoteRecord, error)
	// Create stores a new record, it does not check for duplicates.
	Create(ctx context.Context, r launch.Record) error
}
