package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"examduler/internal/audit"
	"examduler/internal/auth"
	"examduler/internal/org"
	orghandler "examduler/internal/org/handler"
	orgservice "examduler/internal/org/service"
	"examduler/internal/platform/config"
	"examduler/internal/platform/httpserver"
	"examduler/internal/platform/logger"
	"examduler/internal/platform/metrics"
	"examduler/internal/platform/postgres"
	"examduler/internal/platform/redis"
	"examduler/internal/users"
	"examduler/internal/verification"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal packages.
func main() {
	_ = godotenv.Load()

	log := logger.New()
	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	var rawRedis *goredis.Client
	if redisClient != nil {
		rawRedis = redisClient.Client
		defer redisClient.Close()
	}

	var sink audit.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	} else {
		log.Info("no kafka brokers configured, audit events go to the log")
		sink = audit.NewLogSink(log)
	}
	publisher := audit.NewPublisher(sink, 256, log)

	m := metrics.New()
	orgStore := org.NewPostgresStore(db)
	userStore := users.NewPostgresStore(db)
	verifier := verification.New(nil, &http.Client{Timeout: cfg.VerifyTimeout})
	cooldown := verification.NewCooldown(rawRedis, cfg.VerifyCooldown)
	jwtService := auth.NewService(cfg.JWTSigningKey, "examduler", userStore)

	orgService := orgservice.New(
		orgStore, userStore, verifier, cooldown,
		newPostgresTxRunner(db), publisher, m, log,
	)

	router := chi.NewRouter()
	orghandler.New(orgService, jwtService, log).Register(router)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting examduler", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := publisher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
