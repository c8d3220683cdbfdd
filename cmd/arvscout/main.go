package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"arvscout/config"
	"arvscout/internal/app"
	"arvscout/internal/cache"
	"arvscout/internal/logging"
)

var (
	configPath = flag.String("config", "", "Path to YAML config")
	outPath    = flag.String("out", "", "Path to output CSV or XLSX (default out/properties_<ts>.csv)")
	verbose    = flag.Bool("verbose", false, "Enable verbose logs")
	clearCache = flag.String("clear-cache", "", "Clear a cache namespace (api, llm or all) and exit")
	cacheStats = flag.Bool("cache-stats", false, "Print cache statistics and exit")
	dumpConfig = flag.String("dump-config", "", "Write the resolved config (after prompt parsing) to this YAML path and exit")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	env, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load environment config: %v\n", err)
		return 2
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:   env.Log.Level,
		Format:  env.Log.Format,
		Dir:     env.Log.Dir,
		Verbose: *verbose,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		return 2
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, env, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to open cache store")
		return 1
	}
	defer store.Close()

	a := app.New(env, store, logger)

	if *clearCache != "" || *cacheStats {
		return admin(ctx, a, logger)
	}

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "--config is required")
		flag.Usage()
		return 2
	}

	if *dumpConfig != "" {
		if _, err := a.DumpConfig(ctx, *configPath, *dumpConfig); err != nil {
			logger.WithError(err).Error("Failed to resolve config")
			return 2
		}
		return 0
	}

	sum, path, err := a.RunFile(ctx, *configPath, *outPath)
	if sum != nil {
		fmt.Printf("Run %s: wrote %d rows to %s (skipped %d, screened %d)\n", sum.RunID, sum.Rows, path, sum.Skipped, sum.Screened)
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, cache.ErrRateLimitExceeded):
		logger.Error("Daily upstream request limit reached; partial results were written")
		return 3
	case errors.Is(err, app.ErrNoGeos):
		logger.WithError(err).Error("Invalid config")
		return 2
	default:
		logger.WithError(err).Error("Run failed")
		return 1
	}
}

func admin(ctx context.Context, a *app.App, logger *logrus.Logger) int {
	if *clearCache != "" {
		if err := a.ClearCache(ctx, *clearCache); err != nil {
			logger.WithError(err).Error("Failed to clear cache")
			return 1
		}
		fmt.Printf("Cleared %s cache\n", *clearCache)
	}

	if *cacheStats {
		limit := config.DefaultAppConfig().RateLimit.DailyLimit
		if *configPath != "" {
			rf, err := config.ReadRunConfig(*configPath)
			if err != nil {
				logger.WithError(err).Error("Failed to read config")
				return 2
			}
			limit = rf.Initial.RateLimit.DailyLimit
		}
		report, err := a.CacheReport(ctx, limit)
		if err != nil {
			logger.WithError(err).Error("Failed to read cache stats")
			return 1
		}
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
	}
	return 0
}
