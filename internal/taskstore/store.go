// Package taskstore defines persistence for task records. The terminal
// transition is append-only: once a task is completed or failed no
// further update changes it, which is what makes re-delivered work and
// polling safe.
package taskstore

import (
	"context"
	"errors"
	"time"

	"github.com/triagent/triagent/internal/task"
)

// ErrNotFound is returned when no task exists for an id.
var ErrNotFound = errors.New("task not found")

// Stats is a coarse census of the store, exposed on /health.
type Stats struct {
	Pending   int64 `json:"pending"`
	Completed int64 `json:"completed"`
}

// Store is the persistence interface for task records.
type Store interface {
	// Create persists a new pending task. The id must be unique.
	Create(ctx context.Context, t *task.Task) error

	// Get retrieves a task by id.
	Get(ctx context.Context, id string) (*task.Task, bool, error)

	// MarkProcessing moves a non-terminal task to processing. It is a
	// no-op returning false if the task is already terminal, so a
	// redelivered message cannot resurrect a finished task.
	MarkProcessing(ctx context.Context, id string) (bool, error)

	// UpdateTerminal records the terminal status, result and error
	// atomically, setting completed_at. Returns false without touching
	// the row when the task is already terminal.
	UpdateTerminal(ctx context.Context, id string, status task.Status, result []byte, terr *task.Error) (bool, error)

	// RequestCancel flags a non-terminal task for cooperative
	// cancellation and returns the task as currently stored. Cancelling
	// a terminal task changes nothing.
	RequestCancel(ctx context.Context, id string) (*task.Task, bool, error)

	// Stats counts pending and completed tasks.
	Stats(ctx context.Context) (Stats, error)

	// DeleteOlderThan removes tasks created before cutoff, returning
	// the number deleted. Used by the maintenance sweep.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping reports backend reachability for health checks.
	Ping(ctx context.Context) error
}
