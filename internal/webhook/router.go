package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/triagent/triagent/internal/logging"
	"github.com/triagent/triagent/internal/metrics"
	"github.com/triagent/triagent/internal/task"
	"github.com/triagent/triagent/internal/tracing"
)

// Submitter turns a classified event into a queued task: it persists the
// pending task record and publishes the envelope.
type Submitter interface {
	Submit(ctx context.Context, kind task.Kind, payload json.RawMessage) (string, error)
}

// Result is the intake outcome returned to the delivering system.
type Result struct {
	WebhookID string `json:"webhook_id"`
	Status    Status `json:"status"`
	TaskID    string `json:"task_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Router assigns ids to inbound webhooks, persists them, classifies them,
// and routes classified events to task submission.
type Router struct {
	store  Store
	sub    Submitter
	logger *logging.Logger
}

// NewRouter wires a Router.
func NewRouter(store Store, sub Submitter, logger *logging.Logger) *Router {
	return &Router{store: store, sub: sub, logger: logger}
}

// Handle processes one delivery. The record is written with status received
// before any task side effect; the outcome update afterwards is best-effort
// and never blocks the enqueue path. Malformed bodies return a
// *MalformedError and end as status error.
func (r *Router) Handle(ctx context.Context, source Source, body []byte) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "webhook.Handle",
		attribute.String("webhook_source", string(source)),
	)
	defer span.End()

	rec := &Record{
		ID:         ulid.Make().String(),
		Source:     source,
		EventType:  "unknown",
		Payload:    body,
		Status:     StatusReceived,
		ReceivedAt: time.Now().UTC(),
	}
	span.SetAttributes(attribute.String("webhook_id", rec.ID))
	if err := r.store.Create(ctx, rec); err != nil {
		// Intake logging is a side channel: surface the failure, keep routing.
		metrics.WebhookLogFailuresTotal.Inc()
		r.logger.WithContext(ctx).WithWebhook(rec.ID).WithSource(string(source)).
			WithError(err).Error("webhook record create failed")
	}

	cls, err := Classify(source, body)
	if err != nil {
		r.updateOutcome(ctx, rec.ID, StatusError, "unknown", "", "")
		metrics.RecordWebhook(string(source), string(StatusError))
		tracing.SetSpanError(ctx, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("event_type", cls.EventType))

	if cls.Ignored {
		r.updateOutcome(ctx, rec.ID, StatusIgnored, cls.EventType, "", "")
		metrics.RecordWebhook(string(source), string(StatusIgnored))
		r.logger.WithContext(ctx).WithWebhook(rec.ID).WithSource(string(source)).
			WithField("event_type", cls.EventType).Info("webhook ignored")
		return &Result{WebhookID: rec.ID, Status: StatusIgnored}, nil
	}

	// Replay short-circuit when the source carries a stable delivery key.
	if cls.DedupKey != "" {
		if prev, ok, err := r.store.FindByDedupKey(ctx, source, cls.DedupKey); err == nil && ok && prev.TaskID != "" {
			r.updateOutcome(ctx, rec.ID, StatusQueued, cls.EventType, prev.TaskID, cls.DedupKey)
			metrics.RecordWebhook(string(source), "duplicate")
			tracing.AddSpanEvent(ctx, "webhook.duplicate_delivery",
				attribute.String("original_webhook_id", prev.ID),
			)
			r.logger.WithContext(ctx).WithWebhook(rec.ID).WithSource(string(source)).
				WithTask(prev.TaskID).Info("duplicate delivery short-circuited")
			return &Result{WebhookID: rec.ID, Status: StatusQueued, TaskID: prev.TaskID, Duplicate: true}, nil
		}
	}

	taskID, err := r.sub.Submit(ctx, cls.Kind, cls.Payload)
	if err != nil {
		r.updateOutcome(ctx, rec.ID, StatusError, cls.EventType, "", "")
		metrics.RecordWebhook(string(source), string(StatusError))
		tracing.SetSpanError(ctx, err)
		return nil, err
	}

	r.updateOutcome(ctx, rec.ID, StatusQueued, cls.EventType, taskID, cls.DedupKey)
	metrics.RecordWebhook(string(source), string(StatusQueued))
	r.logger.WithContext(ctx).WithWebhook(rec.ID).WithSource(string(source)).
		WithTask(taskID).WithKind(string(cls.Kind)).Info("webhook routed")
	return &Result{WebhookID: rec.ID, Status: StatusQueued, TaskID: taskID}, nil
}

func (r *Router) updateOutcome(ctx context.Context, id string, status Status, eventType, taskID, dedupKey string) {
	if err := r.store.UpdateOutcome(ctx, id, status, eventType, taskID, dedupKey); err != nil {
		metrics.WebhookLogFailuresTotal.Inc()
		r.logger.WithContext(ctx).WithWebhook(id).WithError(err).Error("webhook outcome update failed")
	}
}
