// Package cache provides a Redis-backed voice catalog cache. Voice lists
// change rarely but are expensive to fetch, so dispatchers consult the
// cache before hitting the provider.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voxkit/voxkit/logger"
	"github.com/voxkit/voxkit/tts"
)

const (
	// DefaultTTL is how long a cached voice list stays fresh.
	DefaultTTL = 10 * time.Minute

	// keyPrefix namespaces cache keys in a shared Redis.
	keyPrefix = "voxkit:voices:"
)

// VoiceCache caches voice catalogs per provider in Redis. Cache failures
// are never surfaced to callers; a broken cache degrades to fetching from
// the provider every time.
type VoiceCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New creates a voice cache against the given Redis address.
func New(addr, password string, db int, ttl time.Duration) *VoiceCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewWithClient(client, ttl)
}

// NewWithClient creates a voice cache over an existing Redis client.
func NewWithClient(client redis.UniversalClient, ttl time.Duration) *VoiceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &VoiceCache{client: client, ttl: ttl}
}

// Get implements tts.VoiceCache.
func (c *VoiceCache) Get(ctx context.Context, provider string) ([]tts.Voice, bool) {
	data, err := c.client.Get(ctx, keyPrefix+provider).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("voice cache read failed", "provider", provider, "error", err)
		}
		return nil, false
	}

	var voices []tts.Voice
	if err := json.Unmarshal(data, &voices); err != nil {
		logger.Warn("voice cache entry corrupt, dropping", "provider", provider, "error", err)
		_ = c.client.Del(ctx, keyPrefix+provider).Err()
		return nil, false
	}
	return voices, true
}

// Set implements tts.VoiceCache.
func (c *VoiceCache) Set(ctx context.Context, provider string, voices []tts.Voice) {
	data, err := json.Marshal(voices)
	if err != nil {
		logger.Warn("voice cache encode failed", "provider", provider, "error", err)
		return
	}
	if err := c.client.Set(ctx, keyPrefix+provider, data, c.ttl).Err(); err != nil {
		logger.Warn("voice cache write failed", "provider", provider, "error", err)
	}
}

// Invalidate drops the cached catalog for a provider, forcing the next
// ListVoices to refetch.
func (c *VoiceCache) Invalidate(ctx context.Context, provider string) error {
	return c.client.Del(ctx, keyPrefix+provider).Err()
}

// Close releases the Redis client.
func (c *VoiceCache) Close() error {
	return c.client.Close()
}
