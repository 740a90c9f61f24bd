package cache

import (
	"sync"
	"time"
)

// ContributorCache caches first-time contributor lookups to avoid repeated
// commit-search API calls, which are heavily rate limited.
type ContributorCache struct {
	entries map[string]contributorEntry
	mu      sync.RWMutex
	ttl     time.Duration
}

type contributorEntry struct {
	expiration time.Time
	firstTime  bool
}

// NewContributorCache creates a contributor cache with the given TTL.
func NewContributorCache(ttl time.Duration) *ContributorCache {
	return &ContributorCache{
		entries: make(map[string]contributorEntry),
		ttl:     ttl,
	}
}

func contributorKey(repo, login string) string {
	return repo + ":" + login
}

// Get retrieves a cached first-time result for (repo, login).
func (cc *ContributorCache) Get(repo, login string) (firstTime, ok bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	entry, exists := cc.entries[contributorKey(repo, login)]
	if !exists || time.Now().After(entry.expiration) {
		return false, false
	}
	return entry.firstTime, true
}

// Set stores a first-time result for (repo, login).
func (cc *ContributorCache) Set(repo, login string, firstTime bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.entries[contributorKey(repo, login)] = contributorEntry{
		firstTime:  firstTime,
		expiration: time.Now().Add(cc.ttl),
	}
}
