// Package app wires the stores, clients and pipeline stages together for the
// CLI, the HTTP server and scheduled runs.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"arvscout/config"
	"arvscout/internal/cache"
	"arvscout/internal/database"
	"arvscout/internal/listing"
	"arvscout/internal/llm"
	"arvscout/internal/output"
	"arvscout/internal/processor"
	"arvscout/internal/queue"
)

// ErrUnknownNamespace is returned by ClearCache for anything but api, llm or all.
var ErrUnknownNamespace = errors.New("unknown cache namespace")

// ErrNoGeos is returned when a run configuration names no search areas.
var ErrNoGeos = errors.New("config must include filters.geos (list of locations)")

// OpenStore opens the cache backend selected by CACHE_BACKEND.
func OpenStore(ctx context.Context, env *config.Config, logger *logrus.Logger) (cache.Store, error) {
	switch strings.ToLower(env.Cache.Backend) {
	case "", "sqlite":
		db, err := database.NewDatabase(env.Database.Path, env.Database.BusyTimeoutMs, logger)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	case "redis":
		store := cache.NewRedisStore(&redis.Options{
			Addr:     env.Cache.RedisAddr,
			DB:       env.Cache.RedisDB,
			Password: env.Cache.RedisPass,
		})
		if err := store.Client.Ping(ctx).Err(); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", env.Cache.RedisAddr, err)
		}
		return store, nil
	case "memory":
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", env.Cache.Backend)
	}
}

type App struct {
	Env    *config.Config
	Store  cache.Store
	Logger *logrus.Logger
	Now    cache.Clock
}

func New(env *config.Config, store cache.Store, logger *logrus.Logger) *App {
	if logger == nil {
		logger = logrus.New()
	}
	return &App{Env: env, Store: store, Logger: logger, Now: time.Now}
}

// ResponseCache returns the namespace view configured by cc.
func (a *App) ResponseCache(namespace string, cc config.CacheConfig) *cache.ResponseCache {
	enabled := cc.APICacheEnabled
	if namespace == cache.NamespaceLLM {
		enabled = cc.LLMCacheEnabled
	}
	return cache.NewResponseCache(a.Store, namespace, enabled, cache.TTLFromHours(cc.CacheTTLHours), a.Now, a.Logger)
}

func (a *App) RateLimiter(cfg *config.AppConfig) *cache.RateLimiter {
	return cache.NewRateLimiter(a.Store, cfg.RateLimit.DailyLimit, a.Now, a.Logger)
}

func (a *App) ListingClient(cfg *config.AppConfig) *listing.Client {
	return listing.NewClient(listing.Options{
		BaseURL:    a.Env.Listings.BaseURL,
		Host:       a.Env.Listings.Host,
		APIKey:     a.Env.Listings.APIKey,
		Timeout:    a.Env.Listings.Timeout,
		RetryCount: a.Env.Listings.RetryCount,
	}, a.ResponseCache(cache.NamespaceAPI, cfg.CacheConfig), a.RateLimiter(cfg), a.Logger)
}

// ApplyCacheFlags clears namespaces as requested by the run configuration.
func (a *App) ApplyCacheFlags(ctx context.Context, cc config.CacheConfig) error {
	if cc.ClearBeforeRun {
		return a.ClearCache(ctx, "all")
	}
	if cc.ClearLLMCache {
		if err := a.ClearCache(ctx, cache.NamespaceLLM); err != nil {
			return err
		}
	}
	if cc.ClearAPICache {
		if err := a.ClearCache(ctx, cache.NamespaceAPI); err != nil {
			return err
		}
	}
	return nil
}

// ResolveConfig honours the cache flags, parses the free-text prompt when a
// model key is configured and returns the validated run configuration.
func (a *App) ResolveConfig(ctx context.Context, rf *config.RunFile) (*config.AppConfig, error) {
	if err := a.ApplyCacheFlags(ctx, rf.Initial.CacheConfig); err != nil {
		return nil, err
	}

	llmCfg := rf.Initial.LLMConfig
	if a.Env.OpenAI.Model != "" {
		llmCfg.Model = a.Env.OpenAI.Model
	}
	var completer llm.Completer
	if a.Env.OpenAI.APIKey != "" {
		completer = llm.NewOpenAICompleter(a.Env.OpenAI.APIKey)
	}
	parser := llm.NewParser(completer, llmCfg, a.ResponseCache(cache.NamespaceLLM, rf.Initial.CacheConfig), a.Logger)

	cfg, err := rf.Resolve(ctx, parser)
	if err != nil {
		return nil, err
	}
	a.Logger.WithField("config", cfg).Debug("Merged config")
	return cfg, nil
}

// DefaultOutputPath names a run's output file after the local start time.
func DefaultOutputPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("properties_%s.csv", now.Format("20060102_150405")))
}

// RunFile reads the run configuration at configPath, resolves it and runs it.
// An empty outPath writes to DefaultOutputPath under the configured output
// directory. The path written is returned with the summary.
func (a *App) RunFile(ctx context.Context, configPath, outPath string) (*processor.Summary, string, error) {
	rf, err := config.ReadRunConfig(configPath)
	if err != nil {
		return nil, "", err
	}
	cfg, err := a.ResolveConfig(ctx, rf)
	if err != nil {
		return nil, "", err
	}
	if len(cfg.Filters.Geos) == 0 {
		return nil, "", ErrNoGeos
	}
	if outPath == "" {
		outPath = DefaultOutputPath(a.Env.Server.OutputDir, a.Now())
	}
	sum, err := a.Run(ctx, cfg, outPath)
	return sum, outPath, err
}

// DumpConfig resolves the run configuration at configPath, prompt included,
// and writes the result to outPath as YAML without running a search.
func (a *App) DumpConfig(ctx context.Context, configPath, outPath string) (*config.AppConfig, error) {
	rf, err := config.ReadRunConfig(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := a.ResolveConfig(ctx, rf)
	if err != nil {
		return nil, err
	}
	if err := config.SaveAppConfig(cfg, outPath); err != nil {
		return nil, err
	}
	a.Logger.WithField("path", outPath).Info("Wrote resolved config")
	return cfg, nil
}

// Run executes a batch run with the real listings client and writes the rows
// to outPath.
func (a *App) Run(ctx context.Context, cfg *config.AppConfig, outPath string) (*processor.Summary, error) {
	return a.RunWith(ctx, a.ListingClient(cfg), cfg, outPath)
}

// RunWith executes a batch run over lister. Rows produced before an abort are
// still flushed to outPath.
func (a *App) RunWith(ctx context.Context, lister processor.Lister, cfg *config.AppConfig, outPath string) (*processor.Summary, error) {
	w, err := output.NewWriter(outPath)
	if err != nil {
		return nil, err
	}

	q := queue.NewRowQueue(a.Env.BatchProcessing.QueueSize, a.Logger)
	q.Subscribe(w.WriteRows)
	q.Start()

	sum, runErr := processor.NewBatchProcessor(lister, q, a.Env, a.Logger).WithClock(a.Now).Run(ctx, cfg)

	q.Close()
	writeErr := q.Wait()
	closeErr := w.Close()

	a.Logger.WithFields(logrus.Fields{
		"rows": sum.Rows,
		"path": outPath,
	}).Info("Wrote rows")

	return sum, errors.Join(runErr, writeErr, closeErr)
}

// CacheReport is what the cache-stats surfaces print.
type CacheReport struct {
	cache.Stats
	Day            string `json:"day"`
	RateLimitCount int    `json:"rate_limit_count"`
	RateLimit      int    `json:"rate_limit"`
}

func (a *App) CacheReport(ctx context.Context, dailyLimit int) (*CacheReport, error) {
	st, err := a.Store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	rl := cache.NewRateLimiter(a.Store, dailyLimit, a.Now, a.Logger)
	used, err := rl.Used(ctx)
	if err != nil {
		return nil, err
	}
	return &CacheReport{Stats: st, Day: rl.Today(), RateLimitCount: used, RateLimit: rl.Limit()}, nil
}

// ClearCache empties one namespace ("api", "llm") or every namespace ("all" or "").
func (a *App) ClearCache(ctx context.Context, namespace string) error {
	switch namespace {
	case "", "all":
		namespace = ""
	case cache.NamespaceAPI, cache.NamespaceLLM:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, namespace)
	}
	if err := a.Store.Clear(ctx, namespace); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	a.Logger.WithField("namespace", namespace).Info("Cache cleared")
	return nil
}
