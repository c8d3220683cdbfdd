package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"arvscout/internal/cache"
)

// busyRetries bounds how often a write is retried when another process holds
// the sqlite write lock past the busy timeout.
const busyRetries = 3

// Database is the durable sqlite store behind the response cache and the
// rate limiter. It implements cache.Store.
type Database struct {
	db     *gorm.DB
	path   string
	logger *logrus.Logger
}

var _ cache.Store = (*Database)(nil)

func NewDatabase(dbPath string, busyTimeoutMs int, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
	}

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", dbPath, busyTimeoutMs)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// One connection serializes writers inside this process; the busy
	// timeout covers other processes sharing the file.
	sqlDB.SetMaxOpenConns(1)

	return &Database{db: db, path: dbPath, logger: logger}, nil
}

// RunMigrations creates or updates the cache and rate-limit tables.
func (d *Database) RunMigrations() error {
	if err := d.db.AutoMigrate(&CacheEntry{}, &RateLimitCounter{}); err != nil {
		return fmt.Errorf("failed to migrate cache tables: %w", err)
	}
	return nil
}

func (d *Database) Get(ctx context.Context, namespace, endpoint, key string) (*cache.Entry, error) {
	var row CacheEntry
	err := d.db.WithContext(ctx).
		Where("namespace = ? AND endpoint = ? AND cache_key = ?", namespace, endpoint, key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}

	return &cache.Entry{
		Namespace: row.Namespace,
		Endpoint:  row.Endpoint,
		Key:       row.CacheKey,
		Payload:   []byte(row.Payload),
		StoredAt:  time.Unix(0, row.StoredAt).UTC(),
	}, nil
}

func (d *Database) Put(ctx context.Context, entry cache.Entry) error {
	row := CacheEntry{
		Namespace: entry.Namespace,
		Endpoint:  entry.Endpoint,
		CacheKey:  entry.Key,
		Payload:   entry.Payload,
		StoredAt:  entry.StoredAt.UnixNano(),
	}

	return d.withBusyRetry(ctx, "cache write", func() error {
		return d.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "endpoint"}, {Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "stored_at"}),
		}).Create(&row).Error
	})
}

// CheckAndIncrement runs the quota check and the increment as one upsert
// statement, so no interleaving of callers can push the counter past limit.
func (d *Database) CheckAndIncrement(ctx context.Context, day string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	var allowed bool
	err := d.withBusyRetry(ctx, "rate limit increment", func() error {
		res := d.db.WithContext(ctx).Exec(`
			INSERT INTO rate_limits (day, request_count) VALUES (?, 1)
			ON CONFLICT(day) DO UPDATE SET request_count = rate_limits.request_count + 1
			WHERE rate_limits.request_count < ?
		`, day, limit)
		if res.Error != nil {
			return res.Error
		}
		allowed = res.RowsAffected == 1
		return nil
	})
	return allowed, err
}

func (d *Database) Count(ctx context.Context, day string) (int, error) {
	var row RateLimitCounter
	err := d.db.WithContext(ctx).Where("day = ?", day).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query rate limit counter: %w", err)
	}
	return row.RequestCount, nil
}

func (d *Database) Clear(ctx context.Context, namespace string) error {
	q := d.db.WithContext(ctx)
	if namespace == "" {
		q = q.Where("1 = 1")
	} else {
		q = q.Where("namespace = ?", namespace)
	}
	if err := q.Delete(&CacheEntry{}).Error; err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	d.logger.WithField("namespace", namespace).Info("Cleared response cache")
	return nil
}

func (d *Database) Stats(ctx context.Context) (cache.Stats, error) {
	st := cache.Stats{
		Entries:  map[string]int64{cache.NamespaceAPI: 0, cache.NamespaceLLM: 0},
		Location: d.path,
	}

	var rows []struct {
		Namespace string
		N         int64
	}
	err := d.db.WithContext(ctx).Model(&CacheEntry{}).
		Select("namespace, COUNT(*) AS n").
		Group("namespace").
		Scan(&rows).Error
	if err != nil {
		return st, fmt.Errorf("failed to count cache entries: %w", err)
	}
	for _, r := range rows {
		st.Entries[r.Namespace] = r.N
	}

	if info, err := os.Stat(d.path); err == nil {
		st.SizeBytes = info.Size()
	}
	return st, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Database) withBusyRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		if attempt > 0 {
			d.logger.WithFields(logrus.Fields{
				"operation": op,
				"attempt":   attempt,
			}).Warn("Database busy, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}

		err = fn()
		if err == nil || !isBusy(err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return nil
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
