package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"arvscout/config"
	"arvscout/internal/api"
	"arvscout/internal/app"
	"arvscout/internal/logging"
	"arvscout/internal/processor"
	"arvscout/internal/scheduler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file loaded")
	}

	env, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  env.Log.Level,
		Format: env.Log.Format,
		Dir:    env.Log.Dir,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up logging")
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("backend", env.Cache.Backend).Info("Opening cache store")
	store, err := app.OpenStore(ctx, env, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open cache store")
	}
	defer store.Close()

	a := app.New(env, store, logger)

	// The run config supplies valuation defaults and the daily limit; a
	// missing file falls back to the built-in defaults.
	defaults := config.DefaultAppConfig()
	if rf, err := config.ReadRunConfig(env.Server.RunConfig); err == nil {
		defaults = rf.Initial
	} else {
		logger.WithError(err).Warn("Run config not loaded; using defaults")
	}

	sched := scheduler.NewScheduler(func(ctx context.Context) (*processor.Summary, error) {
		sum, path, err := a.RunFile(ctx, env.Server.RunConfig, "")
		if sum != nil {
			logger.WithFields(logrus.Fields{"run_id": sum.RunID, "rows": sum.Rows, "path": path}).Info("Scheduled run wrote output")
		}
		return sum, err
	}, logger, ctx)
	if env.Server.Schedule != "" {
		if _, err := sched.Schedule(env.Server.Schedule); err != nil {
			logger.WithError(err).Fatal("Invalid SCHEDULE_CRON")
		}
		logger.WithField("schedule", env.Server.Schedule).Info("Scheduled batch runs enabled")
	}
	sched.Start()
	defer sched.Stop()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(env.Server.CORSOrigin)))

	api.SetupRoutes(router, api.NewHandler(a, sched, defaults, logger))

	srv := &http.Server{
		Addr:    ":" + env.Server.Port,
		Handler: router,
	}
	go func() {
		logger.Infof("Starting server on port %s", env.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
}

func corsConfig(origins string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	if origins == "" || origins == "*" {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = strings.Split(origins, ",")
	return cfg
}
