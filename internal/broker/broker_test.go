package broker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/triagent/triagent/internal/task"
)

func TestMemPublisher(t *testing.T) {
	p := NewMemPublisher()
	ctx := context.Background()

	env := &task.Envelope{TaskID: "t1", Kind: task.KindSummarize, Attempt: 0}
	if err := p.Publish(ctx, env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := p.Published()
	if len(got) != 1 {
		t.Fatalf("published %d envelopes, want 1", len(got))
	}
	if got[0].TaskID != "t1" || got[0].Kind != task.KindSummarize {
		t.Errorf("envelope = %+v", got[0])
	}

	// Mutating the caller's envelope after publish must not change the
	// captured copy.
	env.Attempt = 5
	if p.Published()[0].Attempt != 0 {
		t.Error("published envelope aliased caller's value")
	}
}

func TestMemPublisherErr(t *testing.T) {
	p := NewMemPublisher()
	p.Err = errors.New("broker down")

	err := p.Publish(context.Background(), &task.Envelope{TaskID: "t1"})
	if err == nil {
		t.Fatal("publish succeeded, want error")
	}
	if len(p.Published()) != 0 {
		t.Error("envelope recorded despite error")
	}
	if p.Ping() == nil {
		t.Error("ping succeeded, want error")
	}
}

func TestQueueDepths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stats" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"topics":[{"topic_name":"tasks","channels":[{"channel_name":"workers","depth":7}]}]}`))
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	depths, err := QueueDepths(addr)
	if err != nil {
		t.Fatalf("QueueDepths: %v", err)
	}
	if len(depths) != 1 {
		t.Fatalf("got %d readings, want 1", len(depths))
	}
	d := depths[0]
	if d.Topic != "tasks" || d.Channel != "workers" || d.Depth != 7 {
		t.Errorf("reading = %+v", d)
	}
}

func TestQueueDepthsUnreachable(t *testing.T) {
	if _, err := QueueDepths("127.0.0.1:1"); err == nil {
		t.Fatal("expected error for unreachable nsqd")
	}
}
