package task

import "encoding/json"

// Envelope is the wire form of a task on the broker. Attempt counts
// completed delivery attempts so redeliveries carry their history, the
// same way the worker rewrites the message body before a requeue.
type Envelope struct {
	TaskID       string            `json:"task_id"`
	Kind         Kind              `json:"kind"`
	Payload      json.RawMessage   `json:"payload"`
	Attempt      int               `json:"attempt"`
	PublishedAt  string            `json:"published_at"` // RFC3339
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}
