package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisEntryPrefix   = "arv:cache:"
	redisCounterPrefix = "arv:ratelimit:"

	// Counters only need to outlive their own UTC day.
	redisCounterTTL = 48 * time.Hour
)

// checkAndIncrementScript increments KEYS[1] only while it is below ARGV[1].
var checkAndIncrementScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return 0
end
redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

// RedisStore shares the cache and quota between processes on several hosts.
type RedisStore struct {
	Client *redis.Client
}

func NewRedisStore(opt *redis.Options) *RedisStore {
	return &RedisStore{Client: redis.NewClient(opt)}
}

func entryKey(namespace, endpoint, key string) string {
	return redisEntryPrefix + namespace + ":" + endpoint + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, namespace, endpoint, key string) (*Entry, error) {
	fields, err := s.Client.HGetAll(ctx, entryKey(namespace, endpoint, key)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	storedAt, err := strconv.ParseInt(fields["stored_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt cache entry timestamp: %w", err)
	}
	return &Entry{
		Namespace: namespace,
		Endpoint:  endpoint,
		Key:       key,
		Payload:   []byte(fields["payload"]),
		StoredAt:  time.Unix(0, storedAt).UTC(),
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, entry Entry) error {
	return s.Client.HSet(ctx, entryKey(entry.Namespace, entry.Endpoint, entry.Key),
		"payload", entry.Payload,
		"stored_at", strconv.FormatInt(entry.StoredAt.UnixNano(), 10),
	).Err()
}

func (s *RedisStore) CheckAndIncrement(ctx context.Context, day string, limit int) (bool, error) {
	res, err := checkAndIncrementScript.Run(ctx, s.Client,
		[]string{redisCounterPrefix + day},
		limit, int(redisCounterTTL.Seconds()),
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisStore) Count(ctx context.Context, day string) (int, error) {
	n, err := s.Client.Get(ctx, redisCounterPrefix+day).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *RedisStore) Clear(ctx context.Context, namespace string) error {
	pattern := redisEntryPrefix + "*"
	if namespace != "" {
		pattern = redisEntryPrefix + namespace + ":*"
	}

	iter := s.Client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		if err := s.Client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		Entries:  map[string]int64{},
		Location: s.Client.Options().Addr,
	}
	for _, ns := range []string{NamespaceAPI, NamespaceLLM} {
		var n int64
		iter := s.Client.Scan(ctx, 0, redisEntryPrefix+ns+":*", 200).Iterator()
		for iter.Next(ctx) {
			n++
		}
		if err := iter.Err(); err != nil {
			return st, err
		}
		st.Entries[ns] = n
	}
	return st, nil
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}
