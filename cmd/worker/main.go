package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/gatekit/gatekit/internal/app"
	"github.com/gatekit/gatekit/internal/audit"
	"github.com/gatekit/gatekit/internal/platform/db"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			audit.QueueAudit: 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.Handle(audit.TaskTypeRecord, audit.NewTaskHandler(audit.NewRecorder(pool), logger))

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	logger.Info("starting audit worker", slog.String("redis", cfg.RedisAddr))
	if err := server.Run(mux); err != nil {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
