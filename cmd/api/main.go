package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/triagent/triagent/internal/api"
	"github.com/triagent/triagent/internal/auth"
	"github.com/triagent/triagent/internal/broker"
	"github.com/triagent/triagent/internal/config"
	"github.com/triagent/triagent/internal/db"
	"github.com/triagent/triagent/internal/health"
	"github.com/triagent/triagent/internal/logging"
	"github.com/triagent/triagent/internal/metrics"
	"github.com/triagent/triagent/internal/ratelimit"
	taskpg "github.com/triagent/triagent/internal/taskstore/pgstore"
	"github.com/triagent/triagent/internal/tracing"
	"github.com/triagent/triagent/internal/webhook"
	webhookpg "github.com/triagent/triagent/internal/webhook/pgstore"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("triagent-api")

	shutdown, err := tracing.InitTracing(ctx, "triagent-api")
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
	webhookStore, err := webhookpg.New(ctx, pool)
	if err != nil {
		logger.Plain().WithError(err).Fatal("webhook store init failed")
	}

	pub, err := broker.NewNSQPublisher(cfg.NSQ.NsqdTCPAddr, cfg.NSQ.TasksTopic)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq producer creation failed")
	}
	defer pub.Stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	limiter := ratelimit.NewRedisLimiter(rdb, cfg.API.RatePerMinute, time.Minute, logger)

	sub := api.NewSubmitter(tasks, pub, logger)
	whRouter := webhook.NewRouter(webhookStore, sub, logger)

	healthHandler := health.HTTPHandler(tasks,
		func(context.Context) error { return pub.Ping() },
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	)
	srv := api.NewServer(tasks, sub, whRouter, nil, cfg.API.SyncWait, logger)

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	// Rate-limit identity: authenticated client id first, else remote IP.
	keyFunc := func(r *http.Request) string {
		if clientID, ok := auth.GetClientIDFromContext(r.Context()); ok {
			return clientID
		}
		return ratelimit.RemoteAddrKey(r)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/health", healthHandler)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Group(func(r chi.Router) {
		if cfg.API.JWTPublicKey != "" {
			validator, err := auth.NewJWTValidator(cfg.API.JWTPublicKey, cfg.API.JWTIssuer, cfg.API.JWTAudience)
			if err != nil {
				logger.Plain().WithError(err).Fatal("jwt validator init failed")
			}
			r.Use(validator.HTTPMiddleware)
		}
		r.Use(ratelimit.Middleware(limiter, keyFunc))
		srv.RegisterRoutes(r)
	})

	httpSrv := &http.Server{Addr: cfg.API.HTTPPort, Handler: r}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("api server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("api server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	logger.Plain().Info("api server stopped")
}
