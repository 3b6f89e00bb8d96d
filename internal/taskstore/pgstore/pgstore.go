// Package pgstore provides a PostgreSQL implementation of taskstore.Store.
package pgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/triagent/triagent/internal/task"
	"github.com/triagent/triagent/internal/taskstore"
	"github.com/triagent/triagent/internal/tracing"
)

//go:embed schema.sql
var schema string

// Store persists task records in PostgreSQL.
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

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Create inserts a new pending task.
func (s *Store) Create(ctx context.Context, t *task.Task) error {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Create",
		attribute.String("task_id", t.ID),
		attribute.String("task_kind", string(t.Kind)),
	)
	defer span.End()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO triagent.tasks(task_id, kind, status, payload, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)`,
		t.ID, string(t.Kind), string(t.Status), string(t.Payload), t.CreatedAt,
	)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get retrieves a task by id. The second return value reports whether a row exists.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Get",
		attribute.String("task_id", id),
	)
	defer span.End()

	var (
		t        task.Task
		kind     string
		status   string
		payload  []byte
		result   []byte
		errCode  sql.NullString
		errMsg   sql.NullString
		errAtt   sql.NullInt32
		doneAt   sql.NullTime
	)
	err := s.pool.QueryRow(ctx, `
		SELECT task_id, kind, status, payload, result,
		       error_code, error_message, error_attempt,
		       cancel_requested, created_at, completed_at
		FROM triagent.tasks
		WHERE task_id = $1`,
		id,
	).Scan(&t.ID, &kind, &status, &payload, &result,
		&errCode, &errMsg, &errAtt,
		&t.CancelRequested, &t.CreatedAt, &doneAt)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, false, fmt.Errorf("select task: %w", err)
	}

	t.Kind = task.Kind(kind)
	t.Status = task.Status(status)
	t.Payload = payload
	t.Result = result
	if errCode.Valid {
		t.Error = &task.Error{
			Code:    errCode.String,
			Message: errMsg.String,
			Attempt: int(errAtt.Int32),
		}
	}
	if doneAt.Valid {
		ts := doneAt.Time
		t.CompletedAt = &ts
	}
	return &t, true, nil
}

// MarkProcessing moves a task to processing unless it already reached a
// terminal status. Returns whether the transition applied.
func (s *Store) MarkProcessing(ctx context.Context, id string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "pgstore.MarkProcessing",
		attribute.String("task_id", id),
	)
	defer span.End()

	ct, err := s.pool.Exec(ctx, `
		UPDATE triagent.tasks
		SET status = 'processing'
		WHERE task_id = $1 AND status NOT IN ('completed', 'failed')`,
		id,
	)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return false, fmt.Errorf("mark processing: %w", err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM triagent.tasks WHERE task_id = $1)`,
			id,
		).Scan(&exists); err != nil {
			tracing.SetSpanError(ctx, err)
			return false, fmt.Errorf("check task exists: %w", err)
		}
		if !exists {
			return false, taskstore.ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

// UpdateTerminal records a terminal status, result, and error. The guard on
// status makes terminal transitions first-writer-wins: a late retry cannot
// overwrite a result already recorded.
func (s *Store) UpdateTerminal(ctx context.Context, id string, status task.Status, result []byte, terr *task.Error) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "pgstore.UpdateTerminal",
		attribute.String("task_id", id),
		attribute.String("task_status", string(status)),
	)
	defer span.End()

	var (
		errCode sql.NullString
		errMsg  sql.NullString
		errAtt  sql.NullInt32
	)
	if terr != nil {
		errCode = sql.NullString{String: terr.Code, Valid: true}
		errMsg = sql.NullString{String: terr.Message, Valid: true}
		errAtt = sql.NullInt32{Int32: int32(terr.Attempt), Valid: true}
	}
	var resultArg any
	if result != nil {
		resultArg = string(result)
	}

	ct, err := s.pool.Exec(ctx, `
		UPDATE triagent.tasks
		SET status = $2, result = $3::jsonb,
		    error_code = $4, error_message = $5, error_attempt = $6,
		    completed_at = now()
		WHERE task_id = $1 AND status NOT IN ('completed', 'failed')`,
		id, string(status), resultArg, errCode, errMsg, errAtt,
	)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return false, fmt.Errorf("update terminal: %w", err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM triagent.tasks WHERE task_id = $1)`,
			id,
		).Scan(&exists); err != nil {
			tracing.SetSpanError(ctx, err)
			return false, fmt.Errorf("check task exists: %w", err)
		}
		if !exists {
			return false, taskstore.ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

// RequestCancel flags a non-terminal task for cooperative cancellation and
// returns the task's current state. Returns whether the flag was newly applied.
func (s *Store) RequestCancel(ctx context.Context, id string) (*task.Task, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "pgstore.RequestCancel",
		attribute.String("task_id", id),
	)
	defer span.End()

	ct, err := s.pool.Exec(ctx, `
		UPDATE triagent.tasks
		SET cancel_requested = TRUE
		WHERE task_id = $1 AND status NOT IN ('completed', 'failed')`,
		id,
	)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, false, fmt.Errorf("request cancel: %w", err)
	}

	t, ok, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, taskstore.ErrNotFound
	}
	return t, ct.RowsAffected() > 0, nil
}

// Stats counts tasks by status for the health endpoint.
func (s *Store) Stats(ctx context.Context) (taskstore.Stats, error) {
	var st taskstore.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
		    COUNT(*) FILTER (WHERE status = 'pending'),
		    COUNT(*) FILTER (WHERE status = 'completed')
		FROM triagent.tasks`,
	).Scan(&st.Pending, &st.Completed)
	if err != nil {
		return taskstore.Stats{}, fmt.Errorf("task stats: %w", err)
	}
	return st, nil
}

// DeleteOlderThan removes tasks created before the cutoff and returns how
// many rows were deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "pgstore.DeleteOlderThan",
		attribute.String("cutoff", cutoff.Format(time.RFC3339)),
	)
	defer span.End()

	ct, err := s.pool.Exec(ctx, `
		DELETE FROM triagent.tasks WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return 0, fmt.Errorf("delete old tasks: %w", err)
	}
	return ct.RowsAffected(), nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
