package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed JSON caching on top of Client.
// Every method is a no-op miss when Redis is disabled.
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) fullKey(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.client.Enabled()
}

// Get retrieves a cached value. A missing key is (false, nil).
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}
	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	return c.client.Redis().Set(ctx, c.fullKey(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Redis().Del(ctx, c.fullKey(key)).Err()
}

// GetOrSet fills dest from cache, or from fn on a miss (storing the result).
// Cache read/write failures degrade to calling fn; only fn's error is returned.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func() (T, error)) (T, bool, error) {
	var cached T
	if found, err := c.Get(ctx, key, &cached); err == nil && found {
		return cached, true, nil
	}

	value, err := fn()
	if err != nil {
		return value, false, err
	}
	_ = c.Set(ctx, key, value, ttl)
	return value, false, nil
}

// Predefined TTLs
const (
	TTLShort  = 1 * time.Minute // API 응답
	TTLMedium = 1 * time.Hour   // 백테스트 결과
	TTLDaily  = 24 * time.Hour  // 월간 레짐 판정 (월 1회 갱신)
)

// HashKey sha256 of the JSON encoding of parts, used to key results by their inputs
func HashKey(parts ...interface{}) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, p := range parts {
		if err := enc.Encode(p); err != nil {
			return "", fmt.Errorf("hash key: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DetectionKey key of a detection replay for a config/data hash
func DetectionKey(hash string) string {
	return fmt.Sprintf("regime:history:%s", hash)
}

// BacktestKey key of a backtest result for an input hash
func BacktestKey(hash string) string {
	return fmt.Sprintf("backtest:result:%s", hash)
}
