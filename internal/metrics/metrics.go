package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TasksSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triagent_tasks_submitted_total",
			Help: "Total number of tasks submitted by kind and mode.",
		},
		[]string{"kind", "mode"}, // mode: async, sync, webhook
	)

	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triagent_tasks_completed_total",
			Help: "Total number of tasks reaching a terminal status.",
		},
		[]string{"kind", "status"},
	)

	TaskDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triagent_task_duration_seconds",
			Help:    "Wall time of task attempts by kind and outcome.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 240, 300},
		},
		[]string{"kind", "outcome"},
	)

	TaskRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triagent_task_retries_total",
			Help: "Total number of task retries by reason.",
		},
		[]string{"reason"}, // e.g. transient, timeout
	)

	WebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triagent_webhooks_total",
			Help: "Total number of inbound webhooks by source and outcome.",
		},
		[]string{"source", "status"},
	)

	WebhookLogFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "triagent_webhook_log_failures_total",
			Help: "Failures of the best-effort webhook log side channel.",
		},
	)

	RateLimitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triagent_rate_limit_total",
			Help: "Rate limiter admission decisions.",
		},
		[]string{"decision"}, // allowed, rejected, degraded
	)

	EnqueueFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "triagent_enqueue_failures_total",
			Help: "Total number of failed broker publishes.",
		},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "triagent_queue_depth",
			Help: "Broker queue depth by topic and channel.",
		},
		[]string{"topic", "channel"},
	)
)

// MustRegister registers all collectors on the given registry.
func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		TasksSubmittedTotal,
		TasksCompletedTotal,
		TaskDurationSeconds,
		TaskRetriesTotal,
		WebhooksTotal,
		WebhookLogFailuresTotal,
		RateLimitTotal,
		EnqueueFailuresTotal,
		QueueDepth,
	)
}

// RecordSubmission counts a task submission.
func RecordSubmission(kind, mode string) {
	TasksSubmittedTotal.WithLabelValues(kind, mode).Inc()
}

// RecordCompletion counts a terminal task and observes its duration.
func RecordCompletion(kind, status string, dur time.Duration) {
	TasksCompletedTotal.WithLabelValues(kind, status).Inc()
	TaskDurationSeconds.WithLabelValues(kind, status).Observe(dur.Seconds())
}

// RecordRetry counts a retry by classified reason.
func RecordRetry(reason string) {
	TaskRetriesTotal.WithLabelValues(reason).Inc()
}

// RecordWebhook counts an inbound webhook outcome.
func RecordWebhook(source, status string) {
	WebhooksTotal.WithLabelValues(source, status).Inc()
}

// RecordRateLimit counts a limiter decision.
func RecordRateLimit(decision string) {
	RateLimitTotal.WithLabelValues(decision).Inc()
}

// UpdateQueueDepth records broker backlog for a topic/channel pair.
func UpdateQueueDepth(topic, channel string, depth float64) {
	QueueDepth.WithLabelValues(topic, channel).Set(depth)
}
