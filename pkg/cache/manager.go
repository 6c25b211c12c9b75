package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultTTL is how long payloads stay cached when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// Manager handles payload caching with a Redis backend.
type Manager struct {
	redis     *redis.Client
	ttl       time.Duration
	namespace string
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		redis:     redisClient,
		ttl:       ttl,
		namespace: DefaultNamespace,
	}
}

// TTL returns the configured entry lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) key(id string) string {
	return Key{Namespace: m.namespace, ID: id}.String()
}

// Get returns the cached body for id.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (m *Manager) Get(ctx context.Context, id string) ([]byte, error) {
	entry, err := m.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	return entry.Data, nil
}

// GetEntry retrieves the full cache entry for id.
func (m *Manager) GetEntry(ctx context.Context, id string) (*Entry, error) {
	data, err := m.redis.Get(ctx, m.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, id)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return &entry, nil
}

// Set stores body for id with the manager's TTL.
func (m *Manager) Set(ctx context.Context, id string, body []byte) error {
	if len(body) == 0 {
		return fmt.Errorf("cache body cannot be empty")
	}

	now := time.Now()
	entry := Entry{
		ID:       id,
		Data:     body,
		CachedAt: now,
		Expires:  now.Add(m.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, m.key(id), data, m.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.Add(float64(len(data)))
	return nil
}

// Delete removes the cached payload for id.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.redis.Del(ctx, m.key(id)).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
