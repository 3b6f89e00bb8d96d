package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
)

func TestNew(t *testing.T) {
	l := New("triagent-api")
	if l == nil {
		t.Fatal("New() returned nil")
	}
	if l.service != "triagent-api" {
		t.Errorf("service = %q, want %q", l.service, "triagent-api")
	}
}

func TestLoggerWithContext(t *testing.T) {
	l := New("triagent-worker")
	e := l.WithContext(context.Background())

	if e.Service != "triagent-worker" {
		t.Errorf("Service = %q, want %q", e.Service, "triagent-worker")
	}
	if e.TraceID != "" {
		t.Errorf("TraceID = %q, want empty without a recording span", e.TraceID)
	}
	if e.Fields == nil {
		t.Error("Fields map not initialized")
	}
	if e.Time.IsZero() {
		t.Error("Time not set")
	}
}

func TestFluentMethods(t *testing.T) {
	e := New("triagent").Plain().
		WithTask("task-123").
		WithKind("triage").
		WithWebhook("wh-456").
		WithSource("ticket_system").
		WithClient("client-9").
		WithTraceID("abc")

	if e.TaskID != "task-123" {
		t.Errorf("TaskID = %q, want task-123", e.TaskID)
	}
	if e.TaskKind != "triage" {
		t.Errorf("TaskKind = %q, want triage", e.TaskKind)
	}
	if e.WebhookID != "wh-456" {
		t.Errorf("WebhookID = %q, want wh-456", e.WebhookID)
	}
	if e.Source != "ticket_system" {
		t.Errorf("Source = %q, want ticket_system", e.Source)
	}
	if e.ClientID != "client-9" {
		t.Errorf("ClientID = %q, want client-9", e.ClientID)
	}
	if e.TraceID != "abc" {
		t.Errorf("TraceID = %q, want abc", e.TraceID)
	}
}

func TestWithErrorAndFields(t *testing.T) {
	e := (&LogEntry{}).WithError(errors.New("boom")).WithField("attempt", 2)
	if e.Fields["error"] != "boom" {
		t.Errorf("error field = %v, want boom", e.Fields["error"])
	}
	if e.Fields["attempt"] != 2 {
		t.Errorf("attempt field = %v, want 2", e.Fields["attempt"])
	}

	e2 := (&LogEntry{}).WithError(nil)
	if _, ok := e2.Fields["error"]; ok {
		t.Error("nil error should not add a field")
	}
}

func TestOutputJSON(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	New("triagent-api").Plain().WithTask("t-1").WithField("queue", "tasks").Info("task enqueued")

	w.Close()
	os.Stdout = old

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil {
		t.Fatalf("read log line: %v", err)
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if entry.Level != LevelInfo {
		t.Errorf("Level = %q, want info", entry.Level)
	}
	if entry.Message != "task enqueued" {
		t.Errorf("Message = %q, want %q", entry.Message, "task enqueued")
	}
	if entry.TaskID != "t-1" {
		t.Errorf("TaskID = %q, want t-1", entry.TaskID)
	}
	if entry.Fields["queue"] != "tasks" {
		t.Errorf("queue field = %v, want tasks", entry.Fields["queue"])
	}
}

func TestSetDefaultService(t *testing.T) {
	SetDefaultService("triagent-test")
	defer SetDefaultService("triagent")

	e := Plain()
	if e.Service != "triagent-test" {
		t.Errorf("Service = %q, want triagent-test", e.Service)
	}
}
