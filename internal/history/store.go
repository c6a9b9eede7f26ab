// Package history persists completed mailing runs in a local bbolt
// database. Runs are append-only: saved once, never mutated.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/sheetmail/sheetmail/internal/pipeline"
)

var (
	bucketRuns  = []byte("runs")
	bucketIndex = []byte("runs_by_time")
)

// Run is one recorded mailing run.
type Run struct {
	ID         string             `json:"id"`
	Account    string             `json:"account"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	DryRun     bool               `json:"dry_run,omitempty"`
	Outcomes   []pipeline.Outcome `json:"outcomes"`
	ReportPath string             `json:"report_path,omitempty"`
}

// Stats summarizes a run's outcomes by status.
type Stats struct {
	Total      int `json:"total"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
}

// Stats counts the run's outcomes by status.
func (r *Run) Stats() Stats {
	s := Stats{Total: len(r.Outcomes)}
	for _, out := range r.Outcomes {
		switch out.Status {
		case pipeline.StatusOK:
			s.Sent++
		case pipeline.StatusFail:
			s.Failed++
		case pipeline.StatusDuplicate:
			s.Duplicates++
		}
	}
	return s
}

// Store is the bbolt-backed run archive.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketIndex} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying database so other stores can share it.
func (s *Store) DB() *bolt.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records a completed run.
func (s *Store) Save(ctx context.Context, run *Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}
		if err := tx.Bucket(bucketRuns).Put([]byte(run.ID), data); err != nil {
			return fmt.Errorf("failed to store run: %w", err)
		}
		return tx.Bucket(bucketIndex).Put(indexKey(run.StartedAt, run.ID), []byte(run.ID))
	})
}

// Get retrieves a run by ID. Returns nil, nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var run *Run
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(id))
		if data == nil {
			return nil
		}
		run = &Run{}
		return json.Unmarshal(data, run)
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns up to limit runs, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var runs []*Run
	err := s.db.View(func(tx *bolt.Tx) error {
		runsBucket := tx.Bucket(bucketRuns)
		c := tx.Bucket(bucketIndex).Cursor()

		for k, id := c.Last(); k != nil; k, id = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			data := runsBucket.Get(id)
			if data == nil {
				continue
			}
			run := &Run{}
			if err := json.Unmarshal(data, run); err != nil {
				continue
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Delete removes a run and its index entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		runsBucket := tx.Bucket(bucketRuns)
		data := runsBucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("run %s not found", id)
		}

		var run Run
		if err := json.Unmarshal(data, &run); err == nil {
			tx.Bucket(bucketIndex).Delete(indexKey(run.StartedAt, run.ID))
		}
		return runsBucket.Delete([]byte(id))
	})
}

// indexKey orders runs chronologically with the ID as tiebreaker.
func indexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format(time.RFC3339Nano) + "/" + id)
}
