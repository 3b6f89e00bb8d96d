// Package worker executes task envelopes pulled off the broker. The
// executor owns the per-task lifecycle: processing transition, soft and
// hard time limits, failure classification, and the retry-or-fail
// decision handed back to the consumer loop.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/triagent/triagent/internal/llm"
	"github.com/triagent/triagent/internal/logging"
	"github.com/triagent/triagent/internal/metrics"
	"github.com/triagent/triagent/internal/retrieval"
	"github.com/triagent/triagent/internal/task"
	"github.com/triagent/triagent/internal/taskstore"
	"github.com/triagent/triagent/internal/tracing"
)

// Outcome tells the consumer loop what to do with the broker message.
type Outcome struct {
	// Ack finishes the message. When false, Delay is the requeue backoff.
	Ack   bool
	Delay time.Duration
}

// Config bounds task execution.
type Config struct {
	SoftLimit time.Duration
	HardLimit time.Duration
	Policy    task.RetryPolicy
	// RetrievalTopK is how many similar documents enrich root_cause
	// prompts. Zero disables enrichment even when a searcher is set.
	RetrievalTopK int
}

// Executor runs task bodies against the LLM provider and records outcomes.
type Executor struct {
	tasks    taskstore.Store
	provider llm.Provider
	searcher retrieval.Searcher
	cfg      Config
	logger   *logging.Logger
}

// New wires an executor. searcher may be nil.
func New(tasks taskstore.Store, provider llm.Provider, searcher retrieval.Searcher, cfg Config, logger *logging.Logger) *Executor {
	return &Executor{tasks: tasks, provider: provider, searcher: searcher, cfg: cfg, logger: logger}
}

// Handle processes one envelope through to an ack-or-requeue decision.
// It never returns an error: every failure mode inside the task body is
// classified and resolved here so the consumer loop stays trivial.
func (e *Executor) Handle(ctx context.Context, env *task.Envelope) Outcome {
	ctx = tracing.ExtractTraceFromNSQ(ctx, env.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "worker.task",
		attribute.String("task_id", env.TaskID),
		attribute.String("task_kind", string(env.Kind)),
		attribute.Int("attempt", env.Attempt),
	)
	defer span.End()

	log := e.logger.WithContext(ctx).WithTask(env.TaskID).WithKind(string(env.Kind))

	t, ok, err := e.tasks.Get(ctx, env.TaskID)
	if err != nil {
		// Store outage: let redelivery try again later.
		tracing.SetSpanError(ctx, err)
		log.WithError(err).Error("task lookup failed, requeueing")
		return e.retryOutcome(env.Attempt + 1)
	}
	if !ok {
		log.Warn("task record missing, dropping envelope")
		return Outcome{Ack: true}
	}
	if t.Status.Terminal() {
		// Redelivery of an already-finished task is a no-op.
		tracing.AddSpanEvent(ctx, "task.already_terminal")
		return Outcome{Ack: true}
	}
	if t.CancelRequested {
		e.finishFailed(ctx, env, &task.Error{Code: "cancelled", Message: "cancelled before execution", Attempt: env.Attempt})
		log.Info("task cancelled before execution")
		return Outcome{Ack: true}
	}

	if applied, err := e.tasks.MarkProcessing(ctx, env.TaskID); err != nil {
		tracing.SetSpanError(ctx, err)
		log.WithError(err).Error("mark processing failed, requeueing")
		return e.retryOutcome(env.Attempt + 1)
	} else if !applied {
		return Outcome{Ack: true}
	}

	start := time.Now()
	result, err := e.runWithLimits(ctx, t, env)
	dur := time.Since(start)
	span.SetAttributes(attribute.Int64("task.duration_ms", dur.Milliseconds()))

	if err == nil {
		applied, uerr := e.tasks.UpdateTerminal(ctx, env.TaskID, task.StatusCompleted, result, nil)
		if uerr != nil {
			tracing.SetSpanError(ctx, uerr)
			log.WithError(uerr).Error("record completion failed, requeueing")
			return e.retryOutcome(env.Attempt + 1)
		}
		if !applied {
			log.Warn("completion raced a terminal update, keeping first result")
		}
		metrics.RecordCompletion(string(env.Kind), "completed", dur)
		log.WithField("duration_ms", dur.Milliseconds()).Info("task completed")
		return Outcome{Ack: true}
	}

	class := task.Classify(err)
	attempt := env.Attempt + 1
	span.SetAttributes(attribute.String("failure_class", string(class)))

	if e.cfg.Policy.ShouldRetry(attempt, class) {
		metrics.RecordRetry(string(class))
		out := e.retryOutcome(attempt)
		log.WithError(err).WithFields(map[string]any{
			"attempt": attempt,
			"class":   string(class),
			"delay":   out.Delay.String(),
		}).Warn("task failed, requeueing")
		return out
	}

	terr := terminalError(err, class, attempt)
	e.finishFailed(ctx, env, terr)
	metrics.RecordCompletion(string(env.Kind), "failed", dur)
	log.WithError(err).WithFields(map[string]any{
		"attempt": attempt,
		"code":    terr.Code,
	}).Error("task failed permanently")
	return Outcome{Ack: true}
}

func (e *Executor) retryOutcome(attempt int) Outcome {
	return Outcome{Delay: e.cfg.Policy.Delay(attempt)}
}

func (e *Executor) finishFailed(ctx context.Context, env *task.Envelope, terr *task.Error) {
	if _, err := e.tasks.UpdateTerminal(ctx, env.TaskID, task.StatusFailed, nil, terr); err != nil {
		tracing.SetSpanError(ctx, err)
		e.logger.WithContext(ctx).WithTask(env.TaskID).WithError(err).Error("record failure failed")
	}
}

func terminalError(err error, class task.ErrorClass, attempt int) *task.Error {
	code := "retries_exhausted"
	switch class {
	case task.ClassTimeout:
		code = "timeout"
	case task.ClassCancelled:
		code = "cancelled"
	case task.ClassFatal:
		code = "fatal"
	}
	return &task.Error{Code: code, Message: err.Error(), Attempt: attempt}
}

// runWithLimits runs the task body under the hard deadline. The soft
// limit is the cooperative checkpoint: crossing it logs a warning and
// re-reads the cancel flag, so an operator cancel lands mid-flight
// instead of waiting for the hard cap.
func (e *Executor) runWithLimits(ctx context.Context, t *task.Task, env *task.Envelope) ([]byte, error) {
	ctx, timeout := context.WithTimeout(ctx, e.cfg.HardLimit)
	defer timeout()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	softTimer := time.AfterFunc(e.cfg.SoftLimit, func() {
		e.logger.WithContext(ctx).WithTask(env.TaskID).WithKind(string(env.Kind)).
			WithField("soft_limit", e.cfg.SoftLimit.String()).
			Warn("task exceeded soft time limit")
		if cur, ok, err := e.tasks.Get(ctx, env.TaskID); err == nil && ok && cur.CancelRequested {
			cancel(task.ErrCancelled)
		}
	})
	defer softTimer.Stop()

	result, err := e.runBody(ctx, env)
	if err != nil {
		if ctx.Err() != nil {
			if errors.Is(context.Cause(ctx), task.ErrCancelled) {
				return nil, task.ErrCancelled
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("hard time limit exceeded: %w", err)
			}
		}
		return nil, err
	}
	return result, nil
}

// runBody dispatches on the task kind. Unknown kinds and undecodable
// payloads are fatal: retrying cannot fix them.
func (e *Executor) runBody(ctx context.Context, env *task.Envelope) ([]byte, error) {
	switch env.Kind {
	case task.KindSummarize:
		return e.runSummarize(ctx, env)
	case task.KindTriage:
		return e.runTriage(ctx, env)
	case task.KindRootCause:
		return e.runRootCause(ctx, env)
	case task.KindChat:
		return e.runChat(ctx, env)
	}
	return nil, task.Fatal(fmt.Errorf("unknown task kind %q", env.Kind))
}

func (e *Executor) complete(ctx context.Context, prompt string) (*llm.Result, error) {
	res, err := e.provider.Complete(ctx, llm.Request{System: systemPrompt, Prompt: prompt})
	if err != nil {
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, task.Fatal(err)
		}
		return nil, err
	}
	return res, nil
}

func (e *Executor) runSummarize(ctx context.Context, env *task.Envelope) ([]byte, error) {
	p, err := task.DecodeSummarize(env.Payload)
	if err != nil {
		return nil, task.Fatal(err)
	}
	res, err := e.complete(ctx, incidentPrompt(p.Incident))
	if err != nil {
		return nil, err
	}
	format := p.Format
	if format == "" {
		format = "markdown"
	}
	return json.Marshal(map[string]any{
		"incident_key": p.Incident.Key,
		"summary":      res.Text,
		"format":       format,
		"model":        res.Model,
		"usage":        res.Usage,
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (e *Executor) runTriage(ctx context.Context, env *task.Envelope) ([]byte, error) {
	p, err := task.DecodeTriage(env.Payload)
	if err != nil {
		return nil, task.Fatal(err)
	}
	res, err := e.complete(ctx, triagePrompt(p.Ticket))
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"ticket_key":   p.Ticket.Key,
		"analysis":     res.Text,
		"model":        res.Model,
		"usage":        res.Usage,
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (e *Executor) runRootCause(ctx context.Context, env *task.Envelope) ([]byte, error) {
	p, err := task.DecodeRootCause(env.Payload)
	if err != nil {
		return nil, task.Fatal(err)
	}

	// Retrieval enriches the prompt when the caller supplied no related
	// incidents. Failures here degrade the analysis, they don't fail it.
	var related []retrieval.Document
	if e.searcher != nil && e.cfg.RetrievalTopK > 0 && len(p.RelatedIncidents) == 0 {
		docs, serr := e.searcher.Search(ctx, p.Incident.Summary, e.cfg.RetrievalTopK)
		if serr != nil {
			e.logger.WithContext(ctx).WithTask(env.TaskID).WithError(serr).
				Warn("retrieval lookup failed, continuing without context")
		} else {
			related = docs
		}
	}

	res, err := e.complete(ctx, rootCausePrompt(p, related))
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"incident_key":      p.Incident.Key,
		"analysis":          res.Text,
		"related_retrieved": len(related),
		"model":             res.Model,
		"usage":             res.Usage,
		"processed_at":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (e *Executor) runChat(ctx context.Context, env *task.Envelope) ([]byte, error) {
	p, err := task.DecodeChat(env.Payload)
	if err != nil {
		return nil, task.Fatal(err)
	}
	res, err := e.complete(ctx, chatPrompt(p))
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"response":     res.Text,
		"model":        res.Model,
		"usage":        res.Usage,
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	}
	if p.ConversationID != "" {
		out["conversation_id"] = p.ConversationID
	}
	return json.Marshal(out)
}
