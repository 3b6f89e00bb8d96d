// Package webhook handles inbound event notifications from external
// systems: each delivery is assigned an id and persisted before any task
// is enqueued, then classified by source-specific rules into a task kind.
package webhook

import (
	"context"
	"errors"
	"time"
)

// Source identifies which external system delivered a webhook.
type Source string

const (
	SourceTicketSystem Source = "ticket_system"
	SourcePagerSystem  Source = "pager_system"
	SourceGeneric      Source = "generic"
)

// ParseSource validates a source string from an URL path.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceTicketSystem, SourcePagerSystem, SourceGeneric:
		return Source(s), nil
	}
	return "", errors.New("unknown webhook source " + s)
}

// Status is the intake outcome recorded for a webhook delivery.
type Status string

const (
	StatusReceived  Status = "received"
	StatusQueued    Status = "queued"
	StatusProcessed Status = "processed"
	StatusIgnored   Status = "ignored"
	StatusError     Status = "error"
)

// Record is the durable audit entry for one inbound webhook delivery.
// It is created with status received before any side effect, updated once
// when routed, and never touched by workers.
type Record struct {
	ID          string     `json:"webhook_id"`
	Source      Source     `json:"source"`
	EventType   string     `json:"event_type"`
	Payload     []byte     `json:"-"`
	TaskID      string     `json:"task_id,omitempty"`
	Status      Status     `json:"status"`
	DedupKey    string     `json:"-"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Store persists webhook records.
type Store interface {
	// Create inserts a new record; the caller assigns the id.
	Create(ctx context.Context, r *Record) error
	// UpdateOutcome records the routing outcome and processed_at once.
	// The dedup key is persisted here because classification assigns it
	// after the record is first written.
	UpdateOutcome(ctx context.Context, id string, status Status, eventType, taskID, dedupKey string) error
	// Get retrieves a record by id.
	Get(ctx context.Context, id string) (*Record, bool, error)
	// FindByDedupKey returns the most recent queued record matching a
	// source-specific dedup key, when the source provides one.
	FindByDedupKey(ctx context.Context, source Source, key string) (*Record, bool, error)
	// DeleteOlderThan removes records received before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
