package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/triagent/triagent/internal/task"
	"github.com/triagent/triagent/internal/taskstore"
)

func newTask(id string) *task.Task {
	return &task.Task{
		ID:        id,
		Kind:      task.KindSummarize,
		Status:    task.StatusPending,
		Payload:   []byte(`{}`),
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Create(ctx, newTask("t1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, ok, err := s.Get(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Status != task.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}

	// Mutating the returned copy must not touch the stored record.
	got.Status = task.StatusFailed
	again, _, _ := s.Get(ctx, "t1")
	if again.Status != task.StatusPending {
		t.Errorf("stored task mutated through returned copy")
	}

	_, ok, err = s.Get(ctx, "missing")
	if err != nil || ok {
		t.Errorf("get missing: ok=%v err=%v", ok, err)
	}
}

func TestMarkProcessing(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Create(ctx, newTask("t1"))

	ok, err := s.MarkProcessing(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("mark processing: ok=%v err=%v", ok, err)
	}
	got, _, _ := s.Get(ctx, "t1")
	if got.Status != task.StatusProcessing {
		t.Errorf("status = %s, want processing", got.Status)
	}

	if _, err := s.MarkProcessing(ctx, "missing"); err != taskstore.ErrNotFound {
		t.Errorf("missing task: err = %v, want ErrNotFound", err)
	}
}

func TestUpdateTerminalOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Create(ctx, newTask("t1"))

	ok, err := s.UpdateTerminal(ctx, "t1", task.StatusCompleted, []byte(`{"summary":"x"}`), nil)
	if err != nil || !ok {
		t.Fatalf("first terminal update: ok=%v err=%v", ok, err)
	}

	// A later failure must not overwrite the completed result.
	ok, err = s.UpdateTerminal(ctx, "t1", task.StatusFailed, nil, &task.Error{Code: "timeout"})
	if err != nil {
		t.Fatalf("second terminal update: %v", err)
	}
	if ok {
		t.Error("second terminal update applied, want rejected")
	}

	got, _, _ := s.Get(ctx, "t1")
	if got.Status != task.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if got.Error != nil {
		t.Error("error set on completed task")
	}
}

func TestRequestCancel(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Create(ctx, newTask("t1"))

	got, accepted, err := s.RequestCancel(ctx, "t1")
	if err != nil || !accepted {
		t.Fatalf("cancel: accepted=%v err=%v", accepted, err)
	}
	if !got.CancelRequested {
		t.Error("cancel_requested not set on returned task")
	}

	// Terminal tasks reject cancellation but still return state.
	s.UpdateTerminal(ctx, "t1", task.StatusCompleted, nil, nil)
	got, accepted, err = s.RequestCancel(ctx, "t1")
	if err != nil {
		t.Fatalf("cancel terminal: %v", err)
	}
	if accepted {
		t.Error("cancel accepted on terminal task")
	}
	if got.Status != task.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}

	if _, _, err := s.RequestCancel(ctx, "missing"); err != taskstore.ErrNotFound {
		t.Errorf("missing task: err = %v, want ErrNotFound", err)
	}
}

func TestStatsAndCleanup(t *testing.T) {
	s := New()
	ctx := context.Background()

	old := newTask("old")
	old.CreatedAt = time.Now().Add(-8 * 24 * time.Hour)
	s.Create(ctx, old)
	s.Create(ctx, newTask("fresh"))
	s.UpdateTerminal(ctx, "fresh", task.StatusCompleted, nil, nil)

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Pending != 1 || st.Completed != 1 {
		t.Errorf("stats = %+v, want pending=1 completed=1", st)
	}

	n, err := s.DeleteOlderThan(ctx, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if _, ok, _ := s.Get(ctx, "old"); ok {
		t.Error("old task survived cleanup")
	}
	if _, ok, _ := s.Get(ctx, "fresh"); !ok {
		t.Error("fresh task deleted")
	}
}
