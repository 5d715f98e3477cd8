package syncer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"launchsync/internal/launch"
)

// Batch is a persisted list of records to write, identified by its path and
// the hash of its contents.
type Batch struct {
	Path    string
	Hash    string
	Records []launch.Record
}

// HashBytes returns the hex encoded SHA-256 of contents.
func HashBytes(contents []byte) string {
	sum := sha256.Sum256(contents)
	return hex.EncodeToString(sum[:])
}

// LoadBatch reads a to-sync file.
func LoadBatch(path string) (Batch, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return Batch{}, err
	}
	records, err := launch.Decode(bytes.NewReader(contents))
	if err != nil {
		return Batch{}, fmt.Errorf("decode batch %s: %w", path, err)
	}
	return Batch{
		Path:    path,
		Hash:    HashBytes(contents),
		Records: records,
	}, nil
}

// WriteBatch persists records as a to-sync file and returns the loaded batch.
func WriteBatch(path string, records []launch.Record) (Batch, error) {
	err := launch.WriteFile(path, records)
	if err != nil {
		return Batch{}, err
	}
	return LoadBatch(path)
}
