package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"economiza/internal/ingest"
	"economiza/internal/ingest/queue"
	"economiza/internal/jwttoken"
	"economiza/internal/platform/config"
	"economiza/internal/platform/httpserver"
	"economiza/internal/platform/logger"
	"economiza/internal/platform/metrics"
	"economiza/internal/platform/redis"
	"economiza/internal/product/matcher"
	productstore "economiza/internal/product/store"
	"economiza/internal/provider"
	"economiza/internal/receipt/parser"
	receiptstore "economiza/internal/receipt/store"
	"economiza/internal/secrets"
	httptransport "economiza/internal/transport/http"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal services; everything here is construction order,
// fallbacks for unconfigured backends, and graceful shutdown.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checks := map[string]httptransport.HealthChecker{}

	// Storage. Memory stores back local development when no database is
	// configured; production sets DATABASE_URL.
	var (
		receipts receiptstore.Store
		catalog  productstore.Catalog
	)
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return err
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		defer db.Close()

		receipts = receiptstore.NewPostgres(db)
		catalog = productstore.NewPostgres(db)
		checks["database"] = db.PingContext
		log.Info("using postgres storage")
	} else {
		receipts = receiptstore.NewMemoryStore()
		catalog = productstore.NewMemoryCatalog()
		log.Warn("DATABASE_URL not set, using in-memory storage")
	}

	// Queue. A Redis list survives restarts; the channel-backed queue is the
	// single-process fallback.
	var taskQueue queue.Queue
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		taskQueue = queue.NewRedis(redisClient, cfg.Redis.QueueKey)
		checks["redis"] = redisClient.Health
		log.Info("using redis task queue", "key", cfg.Redis.QueueKey)
	} else {
		taskQueue = queue.NewMemory(1024)
		log.Warn("REDIS_URL not set, deferred tasks are lost on restart")
	}

	providerClient, err := provider.New(cfg.Provider, log, m)
	if err != nil {
		return err
	}

	resolver := matcher.NewResolver(catalog, embedder(cfg, log), cfg.Matcher, log, m)

	encryptor, err := buildEncryptor(cfg.Secrets, log)
	if err != nil {
		return err
	}

	service := ingest.NewService(
		providerClient,
		parser.New(log),
		receipts,
		resolver,
		taskQueue,
		encryptor,
		cfg.Ingest,
		log,
		m,
	)

	worker := ingest.NewWorker(taskQueue, service, cfg.Ingest.Workers, log)
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- worker.Run(ctx)
	}()

	jwtService := jwttoken.NewService(cfg.Server.JWTSigningKey)
	handler := httptransport.New(service, receipts, log, m, jwtService)
	router := httptransport.NewRouter(handler, log, checks)

	srv := httpserver.New(cfg.Server.Addr, router)
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.ListenAndServe()
	}()
	log.Info("server listening",
		"addr", cfg.Server.Addr,
		"provider", cfg.Provider.Name,
		"workers", cfg.Ingest.Workers,
	)

	select {
	case <-ctx.Done():
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
	}
	if err := <-workerDone; err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

// embedder returns nil when no embedding endpoint is configured, which
// disables the semantic matching tier.
func embedder(cfg config.Config, log *slog.Logger) matcher.Embedder {
	e := matcher.NewOpenAIEmbedder(cfg.Matcher)
	if e == nil {
		log.Info("embedding matching disabled")
		return nil
	}
	log.Info("embedding matching enabled", "model", cfg.Matcher.EmbeddingModel)
	return e
}

func buildEncryptor(cfg config.SecretsConfig, log *slog.Logger) (secrets.Encryptor, error) {
	if cfg.EncryptionKey == "" {
		log.Warn("ENCRYPTION_KEY not set, raw payloads are stored unencrypted")
		return secrets.Noop{}, nil
	}
	return secrets.NewAESGCM([]byte(cfg.EncryptionKey))
}
