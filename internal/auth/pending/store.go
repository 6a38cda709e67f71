// Package pending holds in-flight link attempts between the Discord and
// Nexus Mods OAuth legs. Entries live for five minutes and are consumed
// exactly once.
package pending

import (
	"errors"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/nexusmods/modlink/internal/db/models"
)

// TTL is how long a pending link stays consumable.
const TTL = 5 * time.Minute

// ErrDuplicateToken means the caller supplied a correlation token that is
// already in flight. Tokens carry enough entropy that a collision is a
// programming error, not a runtime condition.
var ErrDuplicateToken = errors.New("pending link: duplicate correlation token")

// Link is the Discord-side snapshot stored between the two OAuth legs.
type Link struct {
	DiscordID string
	Name      string
	Tokens    models.TokenBundle
	CreatedAt time.Time
}

// Store is an in-memory, TTL-bound store of pending links keyed by
// correlation token. Expired entries are invisible to reads even before a
// sweep removes them.
type Store struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, Link]
}

func NewStore() *Store {
	return NewStoreTTL(TTL)
}

// NewStoreTTL exists so tests can shrink the window.
func NewStoreTTL(ttl time.Duration) *Store {
	return &Store{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, Link](ttl),
			ttlcache.WithDisableTouchOnHit[string, Link](),
		),
	}
}

// Put stores a pending link under token. A colliding live token fails with
// ErrDuplicateToken.
func (s *Store) Put(token string, link Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.cache.Get(token); item != nil {
		return ErrDuplicateToken
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	s.cache.Set(token, link, ttlcache.DefaultTTL)
	return nil
}

// Consume retrieves and removes the entry in one step. A second Consume with
// the same token reports absent, never a stale payload. The removal happens
// under the store lock, before the caller performs any provider call.
func (s *Store) Consume(token string) (Link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(token)
	if item == nil {
		return Link{}, false
	}
	s.cache.Delete(token)
	return item.Value(), true
}

// Sweep drops entries whose TTL has passed. Reads already treat them as
// absent, so sweeping is purely housekeeping.
func (s *Store) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.DeleteExpired()
}

// Len counts live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.DeleteExpired()
	return s.cache.Len()
}
