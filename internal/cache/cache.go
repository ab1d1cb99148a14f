/**
 * Recognition result cache
 *
 * Redis-backed with an in-process fallback tier: a cache outage must
 * degrade to recomputation, never fail a document. Keys bind the file
 * content digest to the pipeline configuration fingerprint so changed
 * settings can never serve stale results.
 */

package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/landreg/transcript-worker/internal/logging"
)

// DefaultTTL matches the recognition result retention window.
const DefaultTTL = 24 * time.Hour

// ResultCache is the two-tier cache over serialized recognition results.
type ResultCache struct {
	client   redis.UniversalClient
	ttl      time.Duration
	fallback *memoryTier
	logger   *logging.Logger
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithTTL overrides the default retention window.
func WithTTL(ttl time.Duration) Option {
	return func(c *ResultCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithFallbackSize caps the in-process tier in bytes.
func WithFallbackSize(maxBytes int64) Option {
	return func(c *ResultCache) {
		if maxBytes > 0 {
			c.fallback.maxBytes = maxBytes
		}
	}
}

// New builds the cache over an existing redis client. A nil client is
// allowed; the cache then runs on the in-process tier alone.
func New(client redis.UniversalClient, opts ...Option) *ResultCache {
	c := &ResultCache{
		client:   client,
		ttl:      DefaultTTL,
		fallback: newMemoryTier(64 << 20),
		logger:   logging.NewLogger("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateKey builds the cache key from the document type, recognition
// language, content digest and pipeline fingerprint.
func GenerateKey(docType, language string, content []byte, optionsFingerprint string) string {
	sum := md5.Sum(content)
	return strings.Join([]string{
		"ocr", docType, language, hex.EncodeToString(sum[:]), optionsFingerprint,
	}, ":")
}

// Get returns the cached serialized result, if present. Redis failures
// log and fall through to the in-process tier; a cache error is never
// distinguishable from a miss by the caller.
func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.client != nil {
		value, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return value, true
		}
		if err != redis.Nil {
			c.logger.Warn("Redis read failed, using fallback tier", "key", key, "error", err)
		}
	}
	return c.fallback.get(key)
}

// Set stores the serialized result with the configured TTL. A redis
// write failure downgrades to the in-process tier.
func (c *ResultCache) Set(ctx context.Context, key string, value []byte) {
	if c.client != nil {
		if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
			c.logger.Warn("Redis write failed, using fallback tier", "key", key, "error", err)
			c.fallback.set(key, value, c.ttl)
		}
		return
	}
	c.fallback.set(key, value, c.ttl)
}

// Invalidate drops one key from both tiers.
func (c *ResultCache) Invalidate(ctx context.Context, key string) {
	if c.client != nil {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.logger.Warn("Redis delete failed", "key", key, "error", err)
		}
	}
	c.fallback.delete(key)
}

// Ping checks redis connectivity for health reporting. A cache running
// on the fallback tier alone reports unhealthy but keeps serving.
func (c *ResultCache) Ping(ctx context.Context) error {
	if c.client == nil {
		return redis.ErrClosed
	}
	return c.client.Ping(ctx).Err()
}

// memoryTier is the bounded in-process fallback. Expiry is lazy: entries
// past their deadline die on the read path, and a write that pushes the
// tier over its ceiling evicts the oldest fifth of entries.
type memoryTier struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	size     int64
	maxBytes int64
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
	storedAt  time.Time
}

func newMemoryTier(maxBytes int64) *memoryTier {
	return &memoryTier{
		entries:  make(map[string]memoryEntry),
		maxBytes: maxBytes,
	}
}

func (m *memoryTier) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		m.size -= entrySize(key, entry.value)
		delete(m.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (m *memoryTier) set(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.entries[key]; ok {
		m.size -= entrySize(key, old.value)
	}
	now := time.Now()
	m.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl), storedAt: now}
	m.size += entrySize(key, value)

	if m.size > m.maxBytes {
		m.evictOldest()
	}
}

func (m *memoryTier) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[key]; ok {
		m.size -= entrySize(key, entry.value)
		delete(m.entries, key)
	}
}

// evictOldest removes roughly the oldest 20% of entries. Called with the
// lock held.
func (m *memoryTier) evictOldest() {
	target := len(m.entries) / 5
	if target < 1 {
		target = 1
	}
	for i := 0; i < target; i++ {
		var oldestKey string
		var oldestAt time.Time
		for key, entry := range m.entries {
			if oldestKey == "" || entry.storedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.storedAt
			}
		}
		if oldestKey == "" {
			return
		}
		m.size -= entrySize(oldestKey, m.entries[oldestKey].value)
		delete(m.entries, oldestKey)
	}
}

func entrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}
