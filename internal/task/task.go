package task

import (
	"fmt"
	"time"
)

// Kind identifies what a task does. The set is closed: routing in the
// worker switches exhaustively over these values, so adding a kind is a
// compile-time change.
type Kind string

const (
	KindSummarize Kind = "summarize"
	KindTriage    Kind = "triage"
	KindRootCause Kind = "root_cause"
	KindChat      Kind = "chat"
)

// Kinds lists every supported task kind.
func Kinds() []Kind {
	return []Kind{KindSummarize, KindTriage, KindRootCause, KindChat}
}

// ParseKind validates a kind string from an URL path or payload.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSummarize, KindTriage, KindRootCause, KindChat:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown task kind %q", s)
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a status is final. Terminal tasks are never
// updated again; maintenance may delete them after the retention window.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Error is the structured error recorded on a failed task.
type Error struct {
	Code    string `json:"code"` // timeout, cancelled, retries_exhausted, fatal
	Message string `json:"message"`
	Attempt int    `json:"attempt,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Task is the persisted record of one unit of LLM-backed work.
// CompletedAt is set exactly when the status becomes terminal.
type Task struct {
	ID              string          `json:"task_id"`
	Kind            Kind            `json:"kind"`
	Status          Status          `json:"status"`
	Payload         []byte          `json:"-"`
	Result          []byte          `json:"result,omitempty"`
	Error           *Error          `json:"error,omitempty"`
	CancelRequested bool            `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}
