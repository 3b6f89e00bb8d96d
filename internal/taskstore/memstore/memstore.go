// Package memstore provides an in-memory taskstore.Store. Suitable for
// dev and tests; task state does not survive a restart.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/triagent/triagent/internal/task"
	"github.com/triagent/triagent/internal/taskstore"
)

// Store holds task records in memory behind a mutex.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
}

// New initializes an empty in-memory store.
func New() *Store {
	return &Store{tasks: make(map[string]*task.Task)}
}

func copyTask(t *task.Task) *task.Task {
	cp := *t
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		cp.CompletedAt = &ts
	}
	if t.Error != nil {
		e := *t.Error
		cp.Error = &e
	}
	return &cp
}

// Create persists a new pending task.
func (s *Store) Create(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = copyTask(t)
	return nil
}

// Get retrieves a copy of a task by id.
func (s *Store) Get(_ context.Context, id string) (*task.Task, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false, nil
	}
	return copyTask(t), true, nil
}

// MarkProcessing moves a non-terminal task to processing.
func (s *Store) MarkProcessing(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false, taskstore.ErrNotFound
	}
	if t.Status.Terminal() {
		return false, nil
	}
	t.Status = task.StatusProcessing
	return true, nil
}

// UpdateTerminal records the terminal status once.
func (s *Store) UpdateTerminal(_ context.Context, id string, status task.Status, result []byte, terr *task.Error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false, taskstore.ErrNotFound
	}
	if t.Status.Terminal() {
		return false, nil
	}
	now := time.Now().UTC()
	t.Status = status
	t.Result = result
	t.Error = terr
	t.CompletedAt = &now
	return true, nil
}

// RequestCancel flags a non-terminal task for cancellation.
func (s *Store) RequestCancel(_ context.Context, id string) (*task.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false, taskstore.ErrNotFound
	}
	if !t.Status.Terminal() {
		t.CancelRequested = true
	}
	return copyTask(t), !t.Status.Terminal(), nil
}

// Stats counts pending and completed tasks.
func (s *Store) Stats(_ context.Context) (taskstore.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st taskstore.Stats
	for _, t := range s.tasks {
		switch t.Status {
		case task.StatusPending:
			st.Pending++
		case task.StatusCompleted:
			st.Completed++
		}
	}
	return st, nil
}

// DeleteOlderThan removes tasks created before cutoff.
func (s *Store) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tasks {
		if t.CreatedAt.Before(cutoff) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(_ context.Context) error { return nil }
