package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/triagent/triagent/internal/db"
	"github.com/triagent/triagent/internal/webhook"
	"github.com/triagent/triagent/internal/webhook/pgstore"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("TRIAGENT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TRIAGENT_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("db.Connect: %v", err)
	}
	t.Cleanup(pool.Close)
	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

func newRecord(source webhook.Source) *webhook.Record {
	return &webhook.Record{
		ID:         ulid.Make().String(),
		Source:     source,
		EventType:  "unknown",
		Payload:    []byte(`{"event":{"id":"evt-1"}}`),
		Status:     webhook.StatusReceived,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestCreateAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	want := newRecord(webhook.SourcePagerSystem)
	if err := s.Create(ctx, want); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok, err := s.Get(ctx, want.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get returned ok=false, want true")
	}
	if got.Source != want.Source || got.Status != webhook.StatusReceived {
		t.Fatalf("got %+v", got)
	}
}

func TestUpdateOutcomeAndDedup(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rec := newRecord(webhook.SourcePagerSystem)
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dedupKey := "evt-" + rec.ID
	if err := s.UpdateOutcome(ctx, rec.ID, webhook.StatusQueued, "incident.triggered", "01TASK", dedupKey); err != nil {
		t.Fatalf("UpdateOutcome: %v", err)
	}

	got, ok, err := s.FindByDedupKey(ctx, webhook.SourcePagerSystem, dedupKey)
	if err != nil {
		t.Fatalf("FindByDedupKey: %v", err)
	}
	if !ok {
		t.Fatal("FindByDedupKey missed a queued record")
	}
	if got.ID != rec.ID || got.TaskID != "01TASK" {
		t.Fatalf("got %+v", got)
	}

	// Keys are scoped per source.
	if _, ok, err := s.FindByDedupKey(ctx, webhook.SourceTicketSystem, dedupKey); err != nil || ok {
		t.Fatalf("cross-source lookup: ok=%v err=%v", ok, err)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rec := newRecord(webhook.SourceGeneric)
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := s.DeleteOlderThan(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n < 1 {
		t.Fatalf("deleted %d rows, want at least 1", n)
	}
	if _, ok, _ := s.Get(ctx, rec.ID); ok {
		t.Fatal("record survived retention delete")
	}
}
