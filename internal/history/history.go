// Package history persists completed batch run summaries in a bbolt
// database so past runs survive restarts.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"swbatch/internal/models"
)

const runsBucket = "runs"

// RunRecord summarizes one completed (or failed) batch run.
type RunRecord struct {
	ID         string                 `json:"id"`
	InputDir   string                 `json:"input_dir"`
	OutputDir  string                 `json:"output_dir"`
	Formats    []string               `json:"formats"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Stats      models.ConversionStats `json:"stats"`
	Error      string                 `json:"error,omitempty"`
}

// Store is a bbolt-backed history of batch runs.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o666, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores one run record. Keys sort chronologically so Recent can
// walk the bucket backwards.
func (s *Store) Append(rec RunRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	key := rec.FinishedAt.UTC().Format(time.RFC3339Nano) + "|" + rec.ID
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).Put([]byte(key), value)
	})
}

// Recent returns up to limit run records, newest first. limit <= 0 means
// no limit.
func (s *Store) Recent(limit int) ([]RunRecord, error) {
	var records []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode run record %q: %w", k, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
