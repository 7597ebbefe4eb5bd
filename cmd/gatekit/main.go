package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/gatekit/gatekit/internal/app"
	"github.com/gatekit/gatekit/internal/assignment"
	"github.com/gatekit/gatekit/internal/audit"
	"github.com/gatekit/gatekit/internal/cache"
	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/observability"
	platformcache "github.com/gatekit/gatekit/internal/platform/cache"
	"github.com/gatekit/gatekit/internal/platform/db"
	"github.com/gatekit/gatekit/internal/relation"
	"github.com/gatekit/gatekit/internal/resolve"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// Without Redis the cache degrades to loader-only reads.
	var redisClient *redis.Client
	if client, err := platformcache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	versioned := cache.New(redisClient, cfg.CacheTTL)
	metrics := observability.NewMetrics()
	invalidator := app.MeteredInvalidator{Cache: versioned, Metrics: metrics}
	flags := cfg.Features()

	var sink audit.Sink = audit.Nop{}
	if flags.Audit {
		if cfg.AuditAsync {
			asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
			defer func() {
				if err := asynqClient.Close(); err != nil {
					logger.Warn("asynq close", slog.Any("error", err))
				}
			}()
			sink = audit.NewEnqueuer(asynqClient)
		} else {
			sink = audit.NewRecorder(dbpool)
		}
	}

	registry := assignment.NewRegistry()
	declarations, err := cfg.SubjectDeclarations()
	if err != nil {
		logger.Error("subject declarations", slog.Any("error", err))
		os.Exit(1)
	}
	for subjectType, kinds := range declarations {
		registry.Declare(subjectType, kinds...)
	}

	entityRepo := entity.NewRepository(dbpool)
	entityService := entity.NewService(entityRepo, invalidator, sink, flags, logger)

	relationRepo := relation.NewRepository(dbpool)
	relationService := relation.NewService(relationRepo, invalidator, sink, flags, logger)

	assignmentRepo := assignment.NewRepository(dbpool)
	assignmentService := assignment.NewService(assignmentRepo, entityRepo, registry, invalidator, sink, flags, logger)

	engine := resolve.NewEngine(versioned, entityRepo, relationRepo, assignmentRepo)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		EntityHandler:     entity.NewHandler(logger, entityService, assignmentService),
		RelationHandler:   relation.NewHandler(logger, relationService, entityService),
		AssignmentHandler: assignment.NewHandler(logger, assignmentService, entityService),
		ResolveHandler:    resolve.NewHandler(logger, engine, metrics),
		Guard:             resolve.Guard{Engine: engine, Logger: logger},
		Cache:             versioned,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
