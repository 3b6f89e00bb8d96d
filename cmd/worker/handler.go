package main

import (
	"context"
	"encoding/json"

	"github.com/nsqio/go-nsq"

	"github.com/triagent/triagent/internal/logging"
	"github.com/triagent/triagent/internal/task"
	"github.com/triagent/triagent/internal/taskstore"
	"github.com/triagent/triagent/internal/worker"
)

// taskHandler bridges NSQ deliveries to the executor. nsqd redelivers
// the body it stored at publish time, so the envelope's Attempt field
// never reflects retry history; the delivery counter on the message is
// the attempt authority.
type taskHandler struct {
	ctx    context.Context
	exec   *worker.Executor
	tasks  taskstore.Store
	logger *logging.Logger
}

func (h *taskHandler) HandleMessage(m *nsq.Message) error {
	m.DisableAutoResponse() // we manually requeue or finish
	defer func() {
		if !m.HasResponded() {
			h.logger.Plain().Warn("message had no response, finishing")
			m.Finish()
		}
	}()

	var env task.Envelope
	if err := json.Unmarshal(m.Body, &env); err != nil {
		h.logger.Plain().WithError(err).Error("bad envelope payload")
		m.Finish() // terminal: don't retry undecodable messages
		return nil
	}

	// Attempts starts at 1 on first delivery; Envelope.Attempt counts
	// completed attempts, so the two are off by one.
	env.Attempt = int(m.Attempts) - 1

	out := h.exec.Handle(h.ctx, &env)
	if out.Ack {
		m.Finish()
		return nil
	}
	m.Requeue(out.Delay)
	return nil
}

// LogFailedMessage fires when the consumer gives up on a delivery at
// its MaxAttempts cap. The record must still reach a terminal status,
// otherwise pollers would see processing forever.
func (h *taskHandler) LogFailedMessage(m *nsq.Message) {
	var env task.Envelope
	if err := json.Unmarshal(m.Body, &env); err != nil {
		h.logger.Plain().WithError(err).Error("dropped message had bad envelope payload")
		return
	}
	terr := &task.Error{
		Code:    "retries_exhausted",
		Message: "delivery attempts exhausted",
		Attempt: int(m.Attempts),
	}
	if _, err := h.tasks.UpdateTerminal(h.ctx, env.TaskID, task.StatusFailed, nil, terr); err != nil {
		h.logger.Plain().WithField("task_id", env.TaskID).WithError(err).Error("failed to record dropped task")
	}
}
