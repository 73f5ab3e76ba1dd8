package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"exchange-rate-resolver/internal/domain/model"
	"exchange-rate-resolver/internal/domain/ports"
	"exchange-rate-resolver/pkg/logger"
)

var (
	ErrInvalidRate = errors.New("cached rate must be positive")
	ErrInvalidTTL  = errors.New("cache ttl must be positive")
)

type MemoryCache struct {
	cacheMap map[string]model.CacheEntry
	mutex    sync.RWMutex
	now      func() time.Time
	log      *logger.Logger
}

var _ ports.RateCache = (*MemoryCache)(nil)

func NewMemoryCache(log *logger.Logger) *MemoryCache {
	return &MemoryCache{
		cacheMap: make(map[string]model.CacheEntry),
		now:      time.Now,
		log:      log,
	}
}

func getCacheKey(pair model.CurrencyPair) string {
	return pair.String()
}

func (c *MemoryCache) Get(ctx context.Context, pair model.CurrencyPair) (*model.ResolvedRate, bool) {
	canonical, _ := pair.Canonical()
	key := getCacheKey(canonical)

	c.mutex.RLock()
	entry, found := c.cacheMap[key]
	c.mutex.RUnlock()

	if !found {
		c.log.Debug("Cache miss", "key", key)
		return nil, false
	}

	if entry.Expired(c.now()) {
		c.log.Debug("Cache entry expired", "key", key)
		return nil, false
	}

	c.log.Debug("Cache hit", "key", key)
	return orient(entry.Rate, pair), true
}

func (c *MemoryCache) Set(ctx context.Context, rate *model.ResolvedRate, ttl time.Duration) error {
	entry, key, err := newEntry(rate, ttl, c.now())
	if err != nil {
		return err
	}

	c.mutex.Lock()
	c.cacheMap[key] = entry
	c.mutex.Unlock()

	c.log.Debug("Cache set", "key", key, "expires_at", entry.ExpiresAt)
	return nil
}

func (c *MemoryCache) ClearExpired(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.cacheMap {
		if entry.Expired(now) {
			delete(c.cacheMap, key)
			removed++
		}
	}

	c.log.Debug("Cleared expired cache entries", "count", removed)
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.cacheMap)
}

// newEntry keys rates by canonical pair but keeps them in the direction
// they were written, so same-direction reads are exact.
func newEntry(rate *model.ResolvedRate, ttl time.Duration, now time.Time) (model.CacheEntry, string, error) {
	if rate == nil || !(rate.Rate > 0) {
		return model.CacheEntry{}, "", ErrInvalidRate
	}
	if ttl <= 0 {
		return model.CacheEntry{}, "", fmt.Errorf("%w: %s", ErrInvalidTTL, ttl)
	}

	canonical, _ := rate.Pair().Canonical()
	return model.CacheEntry{Rate: *rate, ExpiresAt: now.Add(ttl)}, getCacheKey(canonical), nil
}

func orient(stored model.ResolvedRate, pair model.CurrencyPair) *model.ResolvedRate {
	if stored.Pair() != pair {
		inv := stored.Inverse()
		return &inv
	}
	return &stored
}
