package app

import (
	"sync"
	"time"

	"mybeatfi/api/internal/store"
)

type cachedProfile struct {
	profile   store.Profile
	expiresAt time.Time
}

// profileCache holds recently loaded profiles so every authenticated
// request does not cost a profile query.
type profileCache struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]cachedProfile
}

func newProfileCache(ttl time.Duration) *profileCache {
	return &profileCache{ttl: ttl, entries: make(map[string]cachedProfile)}
}

func (c *profileCache) get(userID string) (store.Profile, bool) {
	if c == nil || c.ttl <= 0 {
		return store.Profile{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[userID]
	if !ok {
		return store.Profile{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, userID)
		return store.Profile{}, false
	}
	return entry.profile, true
}

func (c *profileCache) put(profile store.Profile) {
	if c == nil || c.ttl <= 0 || profile.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[profile.ID] = cachedProfile{profile: profile, expiresAt: time.Now().Add(c.ttl)}
}

func (c *profileCache) invalidate(userID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
