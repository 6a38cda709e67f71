// Package stats caches per-game live download counters fetched from the
// Nexus Mods static stats endpoint.
package stats

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// TTL is how long a fetched counter set stays valid.
const TTL = 5 * time.Minute

// ModDownloads is one mod's counters within a game's stats dump.
type ModDownloads struct {
	ModID           int64 `json:"id"`
	TotalDownloads  int64 `json:"total_downloads"`
	UniqueDownloads int64 `json:"unique_downloads"`
}

// Cache stores one entry per game id, replaced wholesale on save. Expired
// entries are deleted on read, not just ignored.
type Cache struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[int64, []ModDownloads]
}

func NewCache() *Cache {
	return NewCacheTTL(TTL)
}

// NewCacheTTL exists so tests can shrink the window.
func NewCacheTTL(ttl time.Duration) *Cache {
	return &Cache{
		cache: ttlcache.New(
			ttlcache.WithTTL[int64, []ModDownloads](ttl),
			ttlcache.WithDisableTouchOnHit[int64, []ModDownloads](),
		),
	}
}

// All returns the full counter list for a game, or ok=false when nothing
// unexpired is cached.
func (c *Cache) All(gameID int64) ([]ModDownloads, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.DeleteExpired()
	item := c.cache.Get(gameID)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Mod returns the counters for one mod within a cached game entry. When the
// game entry exists but carries no row for the mod, a zero-valued placeholder
// is returned with ok=true: "no data for this mod yet" is distinct from "no
// data fetched for this game at all" (ok=false).
func (c *Cache) Mod(gameID, modID int64) (ModDownloads, bool) {
	rows, ok := c.All(gameID)
	if !ok {
		return ModDownloads{}, false
	}
	for _, row := range rows {
		if row.ModID == modID {
			return row, true
		}
	}
	return ModDownloads{ModID: modID}, true
}

// Save replaces the game's entry wholesale with a fresh TTL.
func (c *Cache) Save(gameID int64, rows []ModDownloads) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Set(gameID, rows, ttlcache.DefaultTTL)
}

// Sweep removes all expired entries; safe to call opportunistically after any
// access. Cost is linear in the number of cached games.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.DeleteExpired()
}

// Len counts live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.DeleteExpired()
	return c.cache.Len()
}
