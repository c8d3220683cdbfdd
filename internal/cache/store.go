// Package cache reuses expensive upstream lookups across runs and enforces the
// daily upstream-call quota. Storage is injected through Store so the same
// semantics run over sqlite, Redis or memory.
package cache

import (
	"context"
	"errors"
	"time"
)

// Namespaces separating raw API responses from language-model parses.
const (
	NamespaceAPI = "api"
	NamespaceLLM = "llm"
)

// ErrRateLimitExceeded signals that today's upstream quota is spent. Callers
// should stop network-dependent work for the day rather than retry.
var ErrRateLimitExceeded = errors.New("daily upstream request limit exceeded")

// Entry is one cached payload.
type Entry struct {
	Namespace string
	Endpoint  string
	Key       string
	Payload   []byte
	StoredAt  time.Time
}

// Stats summarizes store contents.
type Stats struct {
	Entries   map[string]int64 `json:"entries"`
	Location  string           `json:"location"`
	SizeBytes int64            `json:"size_bytes"`
}

// Store is the persistence handle beneath ResponseCache and RateLimiter.
type Store interface {
	// Get returns the entry for (namespace, endpoint, key) or nil when absent.
	Get(ctx context.Context, namespace, endpoint, key string) (*Entry, error)

	// Put replaces any entry with the same (namespace, endpoint, key).
	Put(ctx context.Context, entry Entry) error

	// CheckAndIncrement atomically increments the counter for day unless it
	// has already reached limit. It reports whether the increment happened.
	CheckAndIncrement(ctx context.Context, day string, limit int) (bool, error)

	// Count returns the counter for day, 0 when no row exists.
	Count(ctx context.Context, day string) (int, error)

	// Clear removes all entries in namespace, or every namespace when empty.
	Clear(ctx context.Context, namespace string) error

	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
