package launch

import (
	"strings"
)

type Status string

const (
	StatusSuccess        Status = "Success"
	StatusFailure        Status = "Failure"
	StatusPartialSuccess Status = "Partial Success"
	StatusScheduled      Status = "Scheduled"
	StatusTBD            Status = "TBD"
	StatusUnknown        Status = "Unknown"
)

// Pending reports whether the status marks an event that has not happened yet.
func (s Status) Pending() bool {
	return s == StatusScheduled || s == StatusTBD
}

const (
	NotAvailable = "N/A"
	Unknown      = "Unknown"
)

// Record is a single launch as extracted from a listing.
//
// TimestampMs is nil when the listing's time could not be parsed, this is
// distinct from a launch at exactly the epoch.
type Record struct {
	Mission            string `json:"mission"`
	Vehicle            string `json:"vehicle"`
	PadLocation        string `json:"pad_location"`
	TimestampMs        *int64 `json:"timestamp_ms"`
	Status             Status `json:"status"`
	MissionDescription string `json:"mission_description"`
	SourceName         string `json:"source_name"`
	Provider           string `json:"provider"`
}

// Timestamp returns a pointer to a copy of ms.
func Timestamp(ms int64) *int64 {
	return &ms
}

// Eligible reports whether the record should be considered for syncing,
// that is, it has a concrete time or it has not happened yet.
func (r Record) Eligible() bool {
	return r.TimestampMs != nil || r.Status.Pending()
}

// Key is the identity of a launch when deduplicating against the remote store.
type Key struct {
	Millis  int64
	Source  string
	Mission string
}

// NewKey builds a key, a nil timestamp collapses to 0.
func NewKey(timestampMs *int64, source, mission string) Key {
	var millis int64
	if timestampMs != nil {
		millis = *timestampMs
	}
	return Key{
		Millis:  millis,
		Source:  source,
		Mission: NormalizeMission(mission),
	}
}

func NormalizeMission(mission string) string {
	return strings.ToLower(strings.TrimSpace(mission))
}

func (r Record) Key() Key {
	return NewKey(r.TimestampMs, r.SourceName, r.Mission)
}

// CompareTimestamp orders records ascending by timestamp with records
// lacking one placed last.
func CompareTimestamp(a, b Record) int {
	switch {
	case a.TimestampMs == nil && b.TimestampMs == nil:
		return 0
	case a.TimestampMs == nil:
		return 1
	case b.TimestampMs == nil:
		return -1
	case *a.TimestampMs < *b.TimestampMs:
		return -1
	case *a.TimestampMs > *b.TimestampMs:
		return 1
	}
	return 0
}
