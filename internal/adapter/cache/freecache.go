package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/coocood/freecache"

	"exchange-rate-resolver/internal/domain/model"
	"exchange-rate-resolver/internal/domain/ports"
	"exchange-rate-resolver/pkg/logger"
)

// FreeCache keeps entries in a preallocated freecache segment. freecache
// expiry has one-second granularity, so the stored ExpiresAt is checked on
// every read as well.
type FreeCache struct {
	cache *freecache.Cache
	now   func() time.Time
	log   *logger.Logger
}

var _ ports.RateCache = (*FreeCache)(nil)

// NewFreeCache allocates sizeBytes up front (freecache minimum is 512KB).
func NewFreeCache(sizeBytes int, log *logger.Logger) *FreeCache {
	return &FreeCache{
		cache: freecache.NewCache(sizeBytes),
		now:   time.Now,
		log:   log,
	}
}

func (c *FreeCache) Get(ctx context.Context, pair model.CurrencyPair) (*model.ResolvedRate, bool) {
	canonical, _ := pair.Canonical()
	key := getCacheKey(canonical)

	data, err := c.cache.Get([]byte(key))
	if err != nil {
		if !errors.Is(err, freecache.ErrNotFound) {
			c.log.Warn("Cache read failed", "key", key, "error", err)
		}
		c.log.Debug("Cache miss", "key", key)
		return nil, false
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.log.Warn("Dropping undecodable cache entry", "key", key, "error", err)
		c.cache.Del([]byte(key))
		return nil, false
	}

	if entry.Expired(c.now()) {
		c.log.Debug("Cache entry expired", "key", key)
		return nil, false
	}

	c.log.Debug("Cache hit", "key", key)
	return orient(entry.Rate, pair), true
}

func (c *FreeCache) Set(ctx context.Context, rate *model.ResolvedRate, ttl time.Duration) error {
	entry, key, err := newEntry(rate, ttl, c.now())
	if err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry %s: %w", key, err)
	}

	// freecache treats 0 as "never expire".
	ttlSeconds := int(math.Ceil(ttl.Seconds()))
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	if err := c.cache.Set([]byte(key), data, ttlSeconds); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	c.log.Debug("Cache set", "key", key, "expires_at", entry.ExpiresAt)
	return nil
}

// ClearExpired is a no-op: freecache reclaims expired slots itself.
func (c *FreeCache) ClearExpired(ctx context.Context) error {
	return nil
}
