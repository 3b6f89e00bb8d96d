package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/triagent/triagent/internal/broker"
	"github.com/triagent/triagent/internal/logging"
	"github.com/triagent/triagent/internal/metrics"
	"github.com/triagent/triagent/internal/task"
	"github.com/triagent/triagent/internal/taskstore"
	"github.com/triagent/triagent/internal/tracing"
)

// Submitter is the single enqueue path: it persists a pending task record
// and publishes the envelope. Both the task endpoints and the webhook
// router submit through it, so the record always exists before the
// message does.
type Submitter struct {
	tasks  taskstore.Store
	pub    broker.Publisher
	logger *logging.Logger
}

// NewSubmitter wires a Submitter.
func NewSubmitter(tasks taskstore.Store, pub broker.Publisher, logger *logging.Logger) *Submitter {
	return &Submitter{tasks: tasks, pub: pub, logger: logger}
}

// Submit creates the pending record and publishes the envelope, returning
// the new task id. A failed publish marks the record failed so it cannot
// sit pending forever with no message behind it.
func (s *Submitter) Submit(ctx context.Context, kind task.Kind, payload json.RawMessage) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "api.Submit",
		attribute.String("task_kind", string(kind)),
	)
	defer span.End()

	id := ulid.Make().String()
	span.SetAttributes(attribute.String("task_id", id))

	t := &task.Task{
		ID:        id,
		Kind:      kind,
		Status:    task.StatusPending,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		tracing.SetSpanError(ctx, err)
		return "", fmt.Errorf("create task: %w", err)
	}

	env := &task.Envelope{
		TaskID:      id,
		Kind:        kind,
		Payload:     payload,
		Attempt:     0,
		PublishedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.pub.Publish(ctx, env); err != nil {
		metrics.EnqueueFailuresTotal.Inc()
		tracing.SetSpanError(ctx, err)
		terr := &task.Error{Code: "fatal", Message: "broker publish failed: " + err.Error()}
		if _, uerr := s.tasks.UpdateTerminal(ctx, id, task.StatusFailed, nil, terr); uerr != nil {
			s.logger.WithContext(ctx).WithTask(id).WithError(uerr).
				Error("failed task mark after publish failure")
		}
		s.logger.WithContext(ctx).WithTask(id).WithKind(string(kind)).
			WithError(err).Error("broker publish failed")
		return "", fmt.Errorf("publish task: %w", err)
	}

	s.logger.WithContext(ctx).WithTask(id).WithKind(string(kind)).Info("task enqueued")
	return id, nil
}
