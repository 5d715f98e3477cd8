package telemetry

import (
	"strings"
	"sync"
)

type Level int

const (
	LevelBroken Level = iota
	LevelWarning
	LevelDebug
	LevelCount
)

// Report is a single call made against a Recorder.
type Report struct {
	Level  Level
	ID     string
	Params []any
	Count  int64
}

// Recorder is an API that keeps every report in memory so tests can assert
// on what a component reported.
type Recorder struct {
	mutex   sync.Mutex
	reports []Report
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) push(report Report) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, report)
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.push(Report{Level: LevelBroken, ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.push(Report{Level: LevelWarning, ID: id, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.push(Report{Level: LevelDebug, ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.push(Report{Level: LevelCount, ID: id, Count: count})
}

// Reports returns a copy of all reports made so far.
func (r *Recorder) Reports() []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// Filter returns the reports of the given level whose id ends with `suffix`,
// an empty suffix matches every id.
func (r *Recorder) Filter(level Level, suffix string) []Report {
	var out []Report
	for _, report := range r.Reports() {
		if report.Level != level {
			continue
		}
		if !strings.HasSuffix(report.ID, suffix) {
			continue
		}
		out = append(out, report)
	}
	return out
}

// Broken returns all ReportBroken calls.
func (r *Recorder) Broken() []Report {
	return r.Filter(LevelBroken, "")
}

// Warnings returns all ReportWarning calls.
func (r *Recorder) Warnings() []Report {
	return r.Filter(LevelWarning, "")
}

// Count returns the last count reported under an id ending with `suffix`.
func (r *Recorder) Count(suffix string) (int64, bool) {
	counts := r.Filter(LevelCount, suffix)
	if len(counts) == 0 {
		return 0, false
	}
	return counts[len(counts)-1].Count, true
}
