// Package pgstore provides a PostgreSQL implementation of webhook.Store.
package pgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/triagent/triagent/internal/webhook"
)

//go:embed schema.sql
var schema string

// Store persists webhook records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema against the given pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Create(ctx context.Context, r *webhook.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO triagent.webhooks(webhook_id, source, event_type, payload, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, string(r.Source), r.EventType, r.Payload, string(r.Status), r.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook: %w", err)
	}
	return nil
}

func (s *Store) UpdateOutcome(ctx context.Context, id string, status webhook.Status, eventType, taskID, dedupKey string) error {
	var taskArg, dedupArg sql.NullString
	if taskID != "" {
		taskArg = sql.NullString{String: taskID, Valid: true}
	}
	if dedupKey != "" {
		dedupArg = sql.NullString{String: dedupKey, Valid: true}
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE triagent.webhooks
		SET status = $2, event_type = $3, task_id = $4, dedup_key = $5, processed_at = now()
		WHERE webhook_id = $1`,
		id, string(status), eventType, taskArg, dedupArg,
	)
	if err != nil {
		return fmt.Errorf("update webhook outcome: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("webhook %s not found", id)
	}
	return nil
}

const webhookColumns = `webhook_id, source, event_type, payload, task_id, status, dedup_key, received_at, processed_at`

func scanRecord(row pgx.Row) (*webhook.Record, error) {
	var (
		r      webhook.Record
		source string
		status string
		taskID sql.NullString
		dedup  sql.NullString
		doneAt sql.NullTime
	)
	err := row.Scan(&r.ID, &source, &r.EventType, &r.Payload, &taskID, &status, &dedup, &r.ReceivedAt, &doneAt)
	if err != nil {
		return nil, err
	}
	r.Source = webhook.Source(source)
	r.Status = webhook.Status(status)
	r.TaskID = taskID.String
	r.DedupKey = dedup.String
	if doneAt.Valid {
		ts := doneAt.Time
		r.ProcessedAt = &ts
	}
	return &r, nil
}

func (s *Store) Get(ctx context.Context, id string) (*webhook.Record, bool, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx, `
		SELECT `+webhookColumns+` FROM triagent.webhooks WHERE webhook_id = $1`,
		id,
	))
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select webhook: %w", err)
	}
	return r, true, nil
}

func (s *Store) FindByDedupKey(ctx context.Context, source webhook.Source, key string) (*webhook.Record, bool, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx, `
		SELECT `+webhookColumns+`
		FROM triagent.webhooks
		WHERE source = $1 AND dedup_key = $2 AND status = 'queued'
		ORDER BY received_at DESC
		LIMIT 1`,
		string(source), key,
	))
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select webhook by dedup key: %w", err)
	}
	return r, true, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM triagent.webhooks WHERE received_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete old webhooks: %w", err)
	}
	return ct.RowsAffected(), nil
}
