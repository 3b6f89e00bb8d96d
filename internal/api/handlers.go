package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/triagent/triagent/internal/logging"
	"github.com/triagent/triagent/internal/metrics"
	"github.com/triagent/triagent/internal/task"
	"github.com/triagent/triagent/internal/taskstore"
	"github.com/triagent/triagent/internal/webhook"
)

const (
	maxBodyBytes     = 1 << 20
	syncPollInterval = 250 * time.Millisecond
)

// Server holds dependencies for the HTTP handlers.
type Server struct {
	tasks    taskstore.Store
	sub      *Submitter
	webhooks *webhook.Router
	health   http.HandlerFunc
	syncWait time.Duration
	logger   *logging.Logger
}

// NewServer wires the HTTP surface. syncWait bounds how long a
// synchronous submission blocks before degrading to the async response.
func NewServer(tasks taskstore.Store, sub *Submitter, webhooks *webhook.Router, health http.HandlerFunc, syncWait time.Duration, logger *logging.Logger) *Server {
	return &Server{
		tasks:    tasks,
		sub:      sub,
		webhooks: webhooks,
		health:   health,
		syncWait: syncWait,
		logger:   logger,
	}
}

// RegisterRoutes attaches all endpoints to the router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/tasks/{kind}", s.handleSubmit)
	r.Get("/tasks/{id}", s.handleGetTask)
	r.Delete("/tasks/{id}", s.handleCancel)
	r.Post("/webhooks/{source}", s.handleWebhook)
	if s.health != nil {
		r.Get("/health", s.health)
	}
}

// taskResponse is the external shape of a task record. Result is raw JSON
// so the stored document comes back as an object, not an encoded string.
type taskResponse struct {
	TaskID      string          `json:"task_id"`
	Kind        task.Kind       `json:"kind"`
	Status      task.Status     `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *task.Error     `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func toTaskResponse(t *task.Task) taskResponse {
	return taskResponse{
		TaskID:      t.ID,
		Kind:        t.Kind,
		Status:      t.Status,
		Result:      json.RawMessage(t.Result),
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	kind, err := task.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := task.ValidatePayload(kind, body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	async := r.URL.Query().Get("async") != "false"
	mode := "async"
	if !async {
		mode = "sync"
	}
	metrics.RecordSubmission(string(kind), mode)

	id, err := s.sub.Submit(r.Context(), kind, body)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "task enqueue failed")
		return
	}

	if async {
		writeJSON(w, http.StatusAccepted, map[string]string{
			"task_id": id,
			"status":  string(task.StatusPending),
		})
		return
	}
	s.waitForResult(w, r.Context(), id)
}

// waitForResult polls the store until the task is terminal or syncWait
// elapses, then falls back to the async response with the current state.
func (s *Server) waitForResult(w http.ResponseWriter, ctx context.Context, id string) {
	deadline := time.Now().Add(s.syncWait)
	for {
		t, ok, err := s.tasks.Get(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "task lookup failed")
			return
		}
		if ok && t.Status.Terminal() {
			writeJSON(w, http.StatusOK, toTaskResponse(t))
			return
		}
		if time.Now().After(deadline) {
			status := task.StatusPending
			if ok {
				status = t.Status
			}
			writeJSON(w, http.StatusAccepted, map[string]string{
				"task_id": id,
				"status":  string(status),
			})
			return
		}
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled")
			return
		case <-time.After(syncPollInterval):
		}
	}
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		s.logger.WithContext(r.Context()).WithTask(id).WithError(err).Error("task lookup failed")
		writeError(w, http.StatusInternalServerError, "task lookup failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, accepted, err := s.tasks.RequestCancel(r.Context(), id)
	if err != nil {
		if errors.Is(err, taskstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		s.logger.WithContext(r.Context()).WithTask(id).WithError(err).Error("cancel request failed")
		writeError(w, http.StatusInternalServerError, "cancel request failed")
		return
	}
	if !accepted {
		// Already terminal: nothing left to cancel.
		writeJSON(w, http.StatusConflict, map[string]string{
			"task_id": id,
			"status":  string(t.Status),
		})
		return
	}
	s.logger.WithContext(r.Context()).WithTask(id).Info("cancellation requested")
	writeJSON(w, http.StatusOK, map[string]string{
		"task_id": id,
		"status":  "cancelled",
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	source, err := webhook.ParseSource(chi.URLParam(r, "source"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	res, err := s.webhooks.Handle(r.Context(), source, body)
	if err != nil {
		var malformed *webhook.MalformedError
		if errors.As(err, &malformed) {
			writeError(w, http.StatusBadRequest, malformed.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, "webhook processing failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
