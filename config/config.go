package config

import (
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds process-level settings read from the environment.
type Config struct {
	// Database backing the response cache and rate-limit counters
	Database struct {
		Path string `env:"ARV_DB_PATH" envDefault:"cache.db"`

		// Milliseconds sqlite waits on a locked database before failing
		BusyTimeoutMs int `env:"ARV_DB_BUSY_TIMEOUT_MS" envDefault:"5000"`
	}

	Cache struct {
		// One of "sqlite", "redis" or "memory"
		Backend   string `env:"CACHE_BACKEND" envDefault:"sqlite"`
		RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		RedisDB   int    `env:"REDIS_DB" envDefault:"0"`
		RedisPass string `env:"REDIS_PASSWORD"`
	}

	Listings struct {
		Host       string        `env:"ZILLOW_RAPIDAPI_HOST" envDefault:"zillow-com1.p.rapidapi.com"`
		APIKey     string        `env:"RAPIDAPI_KEY"`
		BaseURL    string        `env:"LISTINGS_BASE_URL"` // overrides https://<host>
		Timeout    time.Duration `env:"LISTINGS_TIMEOUT" envDefault:"20s"`
		RetryCount int           `env:"LISTINGS_RETRY_COUNT" envDefault:"2"`
	}

	OpenAI struct {
		APIKey string `env:"OPENAI_API_KEY"`
		Model  string `env:"OPENAI_MODEL"`
	}

	Log struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"text"`
		Dir    string `env:"LOG_DIR" envDefault:"logs"`
	}

	Server struct {
		Port       string `env:"PORT" envDefault:"5250"`
		Schedule   string `env:"SCHEDULE_CRON"`
		RunConfig  string `env:"RUN_CONFIG" envDefault:"config.yaml"`
		OutputDir  string `env:"OUTPUT_DIR" envDefault:"out"`
		CORSOrigin string `env:"CORS_ORIGIN" envDefault:"*"`
	}

	BatchProcessing struct {
		// Number of properties valued concurrently within one search page
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"1"`

		// Rows buffered between processor workers and the output writer
		QueueSize int `env:"BATCH_QUEUE_SIZE" envDefault:"100"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
