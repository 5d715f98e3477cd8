package syncer

import (
	"context"
	"errors"
	"sync"

	"launchsync/internal/launch"
)

type memStore struct {
	mutex   sync.Mutex
	rows    []RemoteRecord
	created []launch.Record
	queries []Query

	queryErr error
	// createErr is returned for creates of these missions.
	createErr map[string]error
	onCreate  func(r launch.Record)
}

func (s *memStore) Query(_ context.Context, q Query) ([]RemoteRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.queries = append(s.queries, q)
	if s.queryErr != nil {
		return nil, s.queryErr
	}

	var out []RemoteRecord
	for _, r := range s.rows {
		if r.Source != q.Source {
			continue
		}
		if q.Untimed && r.TimestampMs != nil {
			continue
		}
		millis := r.Key().Millis
		if q.From != nil && millis < *q.From {
			continue
		}
		if q.At != nil && millis != *q.At {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *memStore) Create(_ context.Context, r launch.Record) error {
	s.mutex.Lock()
	if err, ok := s.createErr[r.Mission]; ok {
		s.mutex.Unlock()
		return err
	}
	s.created = append(s.created, r)
	s.rows = append(s.rows, RemoteRecord{
		TimestampMs: r.TimestampMs,
		Source:      r.SourceName,
		Mission:     r.Mission,
	})
	onCreate := s.onCreate
	s.mutex.Unlock()

	if onCreate != nil {
		onCreate(r)
	}
	return nil
}

func (s *memStore) createdMissions() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var out []string
	for _, r := range s.created {
		out = append(out, r.Mission)
	}
	return out
}

type memProgress struct {
	progress *Progress
	saves    []Progress
	deleted  bool

	loadErr error
	// failSaveAt fails the save whose next_index matches, when set.
	failSaveAt *int
}

var errDiskFull = errors.New("disk full")

func (m *memProgress) Load() (Progress, bool, error) {
	if m.loadErr != nil {
		return Progress{}, false, m.loadErr
	}
	if m.progress == nil {
		return Progress{}, false, nil
	}
	return *m.progress, true, nil
}

func (m *memProgress) Save(p Progress) error {
	if m.failSaveAt != nil && *m.failSaveAt == p.NextIndex {
		return errDiskFull
	}
	m.saves = append(m.saves, p)
	m.progress = &p
	return nil
}

func (m *memProgress) Delete() error {
	m.progress = nil
	m.deleted = true
	return nil
}

const testSource = "nextspaceflight.com"

func rec(mission string, ts *int64, status launch.Status) launch.Record {
	return launch.Record{
		Mission:            mission,
		Vehicle:            "Falcon 9",
		PadLocation:        "SLC-40",
		TimestampMs:        ts,
		Status:             status,
		MissionDescription: launch.NotAvailable,
		SourceName:         testSource,
		Provider:           "SpaceX",
	}
}

func ts(ms int64) *int64 {
	return launch.Timestamp(ms)
}
