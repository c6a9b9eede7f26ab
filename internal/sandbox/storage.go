// Package sandbox captures fully rendered messages instead of sending
// them, so a campaign's templates and recipient resolution can be
// inspected before the real run.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSandbox = []byte("sandbox")

// Message is one captured message.
type Message struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Data       []byte    `json:"data"`
	CapturedAt time.Time `json:"captured_at"`
}

// Storage stores captured messages in a shared bbolt database.
type Storage struct {
	db *bolt.DB
}

// NewStorage creates sandbox storage on the provided database.
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSandbox)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox bucket: %w", err)
	}
	return &Storage{db: db}, nil
}

// Save stores one captured message.
func (s *Storage) Save(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		return tx.Bucket(bucketSandbox).Put(indexKey(msg.CapturedAt, msg.ID), data)
	})
}

// Get retrieves a captured message by ID. Returns nil, nil when absent.
func (s *Storage) Get(ctx context.Context, id string) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var msg *Message
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSandbox).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m Message
			if err := json.Unmarshal(v, &m); err != nil {
				continue
			}
			if m.ID == id {
				msg = &m
				return nil
			}
		}
		return nil
	})
	return msg, err
}

// List returns captured messages, newest first. runID filters to one
// run when non-empty; limit <= 0 means all.
func (s *Storage) List(ctx context.Context, runID string, limit int) ([]*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var messages []*Message
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSandbox).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}
			if runID != "" && msg.RunID != runID {
				continue
			}
			messages = append(messages, &msg)
			if limit > 0 && len(messages) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Clear removes all captured messages.
func (s *Storage) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketSandbox); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketSandbox)
		return err
	})
}

// indexKey orders messages by capture time with the ID as tiebreaker.
func indexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format(time.RFC3339Nano) + "/" + id)
}
