package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"solicitudes/internal/audit"
	"solicitudes/internal/auth/revocation"
	jwttoken "solicitudes/internal/jwt_token"
	"solicitudes/internal/platform/config"
	"solicitudes/internal/platform/httpserver"
	"solicitudes/internal/platform/logger"
	"solicitudes/internal/platform/middleware"
	platformredis "solicitudes/internal/platform/redis"
	"solicitudes/internal/workflow/catalog"
	"solicitudes/internal/workflow/handler"
	"solicitudes/internal/workflow/metrics"
	workflowservice "solicitudes/internal/workflow/service"
	workflowstore "solicitudes/internal/workflow/store"
)

const auditInboxSize = 256

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage. Postgres in production, in-memory when no URL is configured.
	var st workflowstore.Store
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("failed to ping postgres", "error", err)
			os.Exit(1)
		}
		st = workflowstore.NewPostgres(db)
		log.Info("using postgres store")
	} else {
		st = workflowstore.NewInMemoryStore()
		log.Warn("no postgres URL configured, using in-memory store")
	}

	// Token revocation list. Redis when configured, otherwise skipped.
	var revocationChecker middleware.TokenRevocationChecker
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		revocationChecker = revocation.NewRedisTRL(redisClient.Client)
		log.Info("token revocation list enabled")
	}

	// Audit fan-out. Kafka when brokers are configured, in-memory otherwise.
	var sink audit.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("failed to set up kafka audit sink", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("audit events published to kafka", "topic", cfg.Kafka.Topic)
	} else {
		sink = audit.NewMemorySink()
		log.Warn("no kafka brokers configured, audit events stay in memory")
	}
	inbox := make(chan audit.Event, auditInboxSize)
	publisher := audit.NewPublisher(inbox, log)
	worker := audit.NewWorker(sink, inbox, log)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	validator := jwttoken.NewJWTServiceAdapter(jwtService)

	m := metrics.New()
	svc := workflowservice.New(st, catalog.MustNew(), log, m, publisher)
	h := handler.New(svc, log, validator, revocationChecker)

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	h.Register(router)

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting solicitudes server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := worker.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
