package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	// registering twice must panic (already registered)
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	MustRegister(reg)
}

func TestRecordSubmission(t *testing.T) {
	before := testutil.ToFloat64(TasksSubmittedTotal.WithLabelValues("triage", "async"))
	RecordSubmission("triage", "async")
	after := testutil.ToFloat64(TasksSubmittedTotal.WithLabelValues("triage", "async"))
	if after != before+1 {
		t.Errorf("submissions = %v, want %v", after, before+1)
	}
}

func TestRecordCompletion(t *testing.T) {
	before := testutil.ToFloat64(TasksCompletedTotal.WithLabelValues("summarize", "completed"))
	RecordCompletion("summarize", "completed", 3*time.Second)
	after := testutil.ToFloat64(TasksCompletedTotal.WithLabelValues("summarize", "completed"))
	if after != before+1 {
		t.Errorf("completions = %v, want %v", after, before+1)
	}
}

func TestRecordRetryAndWebhook(t *testing.T) {
	before := testutil.ToFloat64(TaskRetriesTotal.WithLabelValues("transient"))
	RecordRetry("transient")
	if got := testutil.ToFloat64(TaskRetriesTotal.WithLabelValues("transient")); got != before+1 {
		t.Errorf("retries = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(WebhooksTotal.WithLabelValues("generic", "ignored"))
	RecordWebhook("generic", "ignored")
	if got := testutil.ToFloat64(WebhooksTotal.WithLabelValues("generic", "ignored")); got != before+1 {
		t.Errorf("webhooks = %v, want %v", got, before+1)
	}
}

func TestRecordRateLimitAndQueueDepth(t *testing.T) {
	before := testutil.ToFloat64(RateLimitTotal.WithLabelValues("rejected"))
	RecordRateLimit("rejected")
	if got := testutil.ToFloat64(RateLimitTotal.WithLabelValues("rejected")); got != before+1 {
		t.Errorf("rate limit decisions = %v, want %v", got, before+1)
	}

	UpdateQueueDepth("tasks", "workers", 17)
	if got := testutil.ToFloat64(QueueDepth.WithLabelValues("tasks", "workers")); got != 17 {
		t.Errorf("queue depth = %v, want 17", got)
	}
}
