package distance

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/korebog/ledger"
)

type cacheEntry struct {
	result  Result
	fetched time.Time
}

// Cached memoises provider answers per address pair for ttl. Estimates are not cached.
type Cached struct {
	provider Provider
	ttl      time.Duration
	nowTime  func() time.Time

	mu      sync.RWMutex
	entries map[[2]string]cacheEntry
}

func NewCached(provider Provider, ttl time.Duration) *Cached {
	return &Cached{
		provider: provider,
		ttl:      ttl,
		nowTime:  time.Now,
		entries:  make(map[[2]string]cacheEntry),
	}
}

// WithNowTime sets the now time function (primarily for testing)
func (c *Cached) WithNowTime(nowFunc func() time.Time) *Cached {
	c.nowTime = nowFunc
	return c
}

func (c *Cached) Distance(ctx context.Context, origin, destination string) (Result, error) {
	key := [2]string{ledger.NormalizeAddress(origin), ledger.NormalizeAddress(destination)}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.nowTime().Sub(entry.fetched) < c.ttl {
		return entry.result, nil
	}

	res, err := c.provider.Distance(ctx, origin, destination)
	if err != nil {
		return Result{}, err
	}
	if !res.Estimated {
		now := c.nowTime()
		c.mu.Lock()
		c.purgeLocked(now)
		c.entries[key] = cacheEntry{result: res, fetched: now}
		c.mu.Unlock()
	}
	return res, nil
}

func (c *Cached) purgeLocked(now time.Time) {
	for k, e := range c.entries {
		if now.Sub(e.fetched) >= c.ttl {
			delete(c.entries, k)
		}
	}
}
