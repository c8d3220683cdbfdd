package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ResponseCache is one namespace of the store with its own enable flag and TTL.
type ResponseCache struct {
	store     Store
	namespace string
	enabled   bool
	ttl       time.Duration
	now       Clock
	logger    *logrus.Logger
}

// NewResponseCache creates a cache over store. A nil clock uses time.Now.
func NewResponseCache(store Store, namespace string, enabled bool, ttl time.Duration, now Clock, logger *logrus.Logger) *ResponseCache {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ResponseCache{
		store:     store,
		namespace: namespace,
		enabled:   enabled,
		ttl:       ttl,
		now:       now,
		logger:    logger,
	}
}

// TTLFromHours converts the configured hour count into a duration.
func TTLFromHours(hours int) time.Duration {
	return time.Duration(hours) * time.Hour
}

func (c *ResponseCache) Enabled() bool {
	return c != nil && c.enabled
}

// Get returns the payload cached for (endpoint, params) if it is no older than
// the TTL. Expired, missing and disabled all report a miss.
func (c *ResponseCache) Get(ctx context.Context, endpoint string, params any) (json.RawMessage, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}

	key, err := KeyFromParams(params)
	if err != nil {
		return nil, false, err
	}

	entry, err := c.store.Get(ctx, c.namespace, endpoint, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if entry == nil {
		return nil, false, nil
	}

	age := c.now().Sub(entry.StoredAt)
	if age > c.ttl {
		c.logger.WithFields(logrus.Fields{
			"namespace": c.namespace,
			"endpoint":  endpoint,
			"age":       age.String(),
		}).Debug("Cache entry expired")
		return nil, false, nil
	}

	c.logger.WithFields(logrus.Fields{
		"namespace": c.namespace,
		"endpoint":  endpoint,
	}).Debug("Cache hit")
	return json.RawMessage(entry.Payload), true, nil
}

// GetInto decodes a cache hit into v.
func (c *ResponseCache) GetInto(ctx context.Context, endpoint string, params any, v any) (bool, error) {
	payload, ok, err := c.Get(ctx, endpoint, params)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return false, fmt.Errorf("failed to decode cached %s payload: %w", endpoint, err)
	}
	return true, nil
}

// Put stores payload for (endpoint, params), replacing any previous entry.
// It is a no-op when the namespace is disabled.
func (c *ResponseCache) Put(ctx context.Context, endpoint string, params any, payload any) error {
	if !c.Enabled() {
		return nil
	}

	key, err := KeyFromParams(params)
	if err != nil {
		return err
	}

	data, ok := payload.(json.RawMessage)
	if !ok {
		data, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode cache payload: %w", err)
		}
	}

	return c.store.Put(ctx, Entry{
		Namespace: c.namespace,
		Endpoint:  endpoint,
		Key:       key,
		Payload:   data,
		StoredAt:  c.now(),
	})
}

// Clear drops every entry in this namespace.
func (c *ResponseCache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx, c.namespace)
}
