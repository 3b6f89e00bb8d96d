package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/triagent/triagent/internal/broker"
	"github.com/triagent/triagent/internal/config"
	"github.com/triagent/triagent/internal/db"
	"github.com/triagent/triagent/internal/health"
	"github.com/triagent/triagent/internal/llm/claude"
	"github.com/triagent/triagent/internal/logging"
	"github.com/triagent/triagent/internal/maintenance"
	"github.com/triagent/triagent/internal/metrics"
	"github.com/triagent/triagent/internal/retrieval"
	"github.com/triagent/triagent/internal/task"
	taskpg "github.com/triagent/triagent/internal/taskstore/pgstore"
	"github.com/triagent/triagent/internal/tracing"
	webhookpg "github.com/triagent/triagent/internal/webhook/pgstore"
	"github.com/triagent/triagent/internal/worker"
)

func main() {
	cfg := config.FromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logging.New("triagent-worker")

	shutdown, err := tracing.InitTracing(ctx, "triagent-worker")
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	pool, err := db.Connect(ctx, cfg.DSN(), int32(cfg.DB.MaxConns))
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	tasks, err := taskpg.New(ctx, pool)
	if err != nil {
		logger.Plain().WithError(err).Fatal("task store init failed")
	}
	webhooks, err := webhookpg.New(ctx, pool)
	if err != nil {
		logger.Plain().WithError(err).Fatal("webhook store init failed")
	}

	var searcher retrieval.Searcher
	topK := 0
	if cfg.Retrieval.Endpoint != "" {
		searcher = retrieval.NewHTTPSearcher(cfg.Retrieval.Endpoint)
		topK = cfg.Retrieval.TopK
	}

	provider := claude.New(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.MaxTokens,
		claude.WithBaseURL(cfg.LLM.BaseURL),
		claude.WithHTTPTimeout(cfg.LLM.HTTPTimeout),
	)

	exec := worker.New(tasks, provider, searcher, worker.Config{
		SoftLimit: cfg.Worker.SoftLimit,
		HardLimit: cfg.Worker.HardLimit,
		Policy: task.RetryPolicy{
			MaxRetries: cfg.Worker.MaxRetries,
			Base:       cfg.Worker.RetryBase,
			Max:        cfg.Worker.RetryMax,
			Jitter:     cfg.Worker.JitterPct,
		},
		RetrievalTopK: topK,
	}, logger)

	// Prom metrics
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	// HTTP health/metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(tasks, nil, nil))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	// Retention sweep runs inside the worker so the API stays read-mostly.
	sweeper := maintenance.New(tasks, webhooks, cfg.Maintenance.Retention, cfg.Maintenance.Interval, logger)
	go sweeper.Run(ctx)

	startBacklogMonitor(cfg, logger)

	// NSQ consumer
	conf := nsq.NewConfig()
	conf.MaxInFlight = cfg.Worker.Concurrency
	// Leave headroom above the retry budget so the executor records the
	// terminal failure before the client-side cap drops the delivery.
	conf.MaxAttempts = uint16(cfg.Worker.MaxRetries) + 2
	consumer, err := nsq.NewConsumer(cfg.NSQ.TasksTopic, cfg.NSQ.WorkerChannel, conf)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
	}

	handler := &taskHandler{ctx: ctx, exec: exec, tasks: tasks, logger: logger}
	consumer.AddConcurrentHandlers(handler, cfg.Worker.Concurrency)

	// Connecting directly to NSQD forces channel creation, instead of the
	// channel being lazily created on first publish
	if err := consumer.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to nsqd failed")
	}
	if err := consumer.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to lookupd failed")
	}

	logger.Plain().Info("worker service started")

	// Graceful stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down worker service")
	consumer.Stop()
	<-consumer.StopChan
	cancel()
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker service stopped")
}

// startBacklogMonitor periodically exports broker queue depths.
func startBacklogMonitor(cfg config.Config, logger *logging.Logger) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		// nsqd serves stats on the HTTP port next to its TCP port.
		nsqdHTTPAddr := strings.Replace(cfg.NSQ.NsqdTCPAddr, ":4150", ":4151", 1)

		for range ticker.C {
			depths, err := broker.QueueDepths(nsqdHTTPAddr)
			if err != nil {
				logger.Plain().WithError(err).Error("Failed to get NSQ stats")
				continue
			}
			for _, d := range depths {
				metrics.UpdateQueueDepth(d.Topic, d.Channel, float64(d.Depth))
			}
		}
	}()
}
