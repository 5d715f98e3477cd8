package syncer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Progress records how far the executor got through a batch.
type Progress struct {
	SourceFile string `json:"source_file"`
	FileHash   string `json:"file_hash"`
	NextIndex  int    `json:"next_index"`
}

// Matches reports whether the progress belongs to this exact batch.
func (p Progress) Matches(batch Batch) bool {
	return p.SourceFile == batch.Path && p.FileHash == batch.Hash
}

var ErrCorruptProgress = errors.New("corrupt progress")

// ProgressStore persists a single Progress value.
//
// note: fault injection point
type ProgressStore interface {
	// Load returns false if nothing is stored, an unreadable value is
	// reported as ErrCorruptProgress.
	Load() (Progress, bool, error)
	Save(p Progress) error
	// Delete is a no-op if nothing is stored.
	Delete() error
}

// FileProgressStore keeps progress in a JSON file, writes go through a
// temporary file that is renamed over the target so a crash never leaves a
// partially written file behind.
type FileProgressStore struct {
	path string
}

func NewFileProgressStore(path string) FileProgressStore {
	return FileProgressStore{path: path}
}

func (s FileProgressStore) Path() string {
	return s.path
}

func (s FileProgressStore) Load() (Progress, bool, error) {
	contents, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Progress{}, false, nil
	}
	if err != nil {
		return Progress{}, false, err
	}

	var progress Progress
	err = json.Unmarshal(contents, &progress)
	if err != nil {
		return Progress{}, false, fmt.Errorf("%w: %s: %w", ErrCorruptProgress, s.path, err)
	}
	if progress.NextIndex < 0 {
		return Progress{}, false, fmt.Errorf("%w: %s: negative next_index", ErrCorruptProgress, s.path)
	}
	return progress, true, nil
}

func (s FileProgressStore) Save(p Progress) error {
	contents, err := json.Marshal(p)
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(s.path), 0777)
	if err != nil {
		return err
	}

	return renameio.WriteFile(s.path, contents, 0644)
}

func (s FileProgressStore) Delete() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
