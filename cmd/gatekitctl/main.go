// gatekitctl is the maintenance CLI: cache administration and bootstrap
// seeding without going through the HTTP surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gatekit/gatekit/internal/app"
	"github.com/gatekit/gatekit/internal/audit"
	"github.com/gatekit/gatekit/internal/cache"
	"github.com/gatekit/gatekit/internal/entity"
	platformcache "github.com/gatekit/gatekit/internal/platform/cache"
	"github.com/gatekit/gatekit/internal/platform/db"
	"github.com/gatekit/gatekit/internal/subject"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	switch os.Args[1] {
	case "cache-clear":
		if err := cacheClear(ctx, cfg); err != nil {
			logger.Error("cache clear", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Println("cache cleared")
	case "cache-version":
		ver, err := cacheVersion(ctx, cfg)
		if err != nil {
			logger.Error("cache version", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Println(ver)
	case "seed":
		if err := seed(ctx, cfg, logger, os.Args[2:]); err != nil {
			logger.Error("seed", slog.Any("error", err))
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: gatekitctl <command>

commands:
  cache-clear            bump the cache version, orphaning every cached value
  cache-version          print the current cache version
  seed <kind> <name>...  create entities of a kind if missing`)
}

func cacheClear(ctx context.Context, cfg *app.Config) error {
	client, err := platformcache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer client.Close()
	return cache.New(client, cfg.CacheTTL).Clear(ctx)
}

func cacheVersion(ctx context.Context, cfg *app.Config) (int64, error) {
	client, err := platformcache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return 0, err
	}
	defer client.Close()
	return cache.New(client, cfg.CacheTTL).Version(ctx)
}

func seed(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("seed: want <kind> <name>...")
	}
	kind, err := entity.ParseKind(args[0])
	if err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	client, err := platformcache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer client.Close()

	versioned := cache.New(client, cfg.CacheTTL)
	flags := cfg.Features()
	var sink audit.Sink = audit.Nop{}
	if flags.Audit {
		sink = audit.NewRecorder(pool)
	}
	service := entity.NewService(entity.NewRepository(pool), versioned, sink, flags, logger)

	ctx = subject.ContextWithActor(ctx, subject.System())
	for _, name := range args[1:] {
		if exists, err := service.Exists(ctx, kind, name); err != nil {
			return err
		} else if exists {
			fmt.Printf("%s %q already present\n", kind, name)
			continue
		}
		if _, err := service.Create(ctx, kind, name); err != nil {
			return err
		}
		fmt.Printf("created %s %q\n", kind, name)
	}
	return nil
}
