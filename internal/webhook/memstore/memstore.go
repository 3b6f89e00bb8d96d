// Package memstore provides an in-memory webhook.Store for dev and tests.
package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/triagent/triagent/internal/webhook"
)

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("webhook record not found")

// Store keeps webhook records in memory behind a mutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]*webhook.Record
	order   []string
}

// New initializes an empty store.
func New() *Store {
	return &Store{records: make(map[string]*webhook.Record)}
}

func copyRecord(r *webhook.Record) *webhook.Record {
	cp := *r
	if r.ProcessedAt != nil {
		ts := *r.ProcessedAt
		cp.ProcessedAt = &ts
	}
	return &cp
}

func (s *Store) Create(_ context.Context, r *webhook.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = copyRecord(r)
	s.order = append(s.order, r.ID)
	return nil
}

func (s *Store) UpdateOutcome(_ context.Context, id string, status webhook.Status, eventType, taskID, dedupKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	r.Status = status
	r.EventType = eventType
	r.TaskID = taskID
	r.DedupKey = dedupKey
	r.ProcessedAt = &now
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*webhook.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	return copyRecord(r), true, nil
}

// FindByDedupKey returns the most recently created queued record for the key.
func (s *Store) FindByDedupKey(_ context.Context, source webhook.Source, key string) (*webhook.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		r := s.records[s.order[i]]
		if r == nil {
			continue
		}
		if r.Source == source && r.DedupKey == key && r.Status == webhook.StatusQueued {
			return copyRecord(r), true, nil
		}
	}
	return nil, false, nil
}

func (s *Store) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.order[:0]
	for _, id := range s.order {
		r := s.records[id]
		if r != nil && r.ReceivedAt.Before(cutoff) {
			delete(s.records, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return n, nil
}
