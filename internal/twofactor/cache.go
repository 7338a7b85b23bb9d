package twofactor

import (
	"context"
	"crypto/subtle"
	"strconv"
	"sync"
	"time"
)

// NonceCache holds short-lived login state outside the row store.
type NonceCache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	// Consume deletes key only if it still holds value, and reports whether it did.
	Consume(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, key string) error
	// Incr bumps a counter, starting its ttl on first use.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

func nonceKey(userID string) string   { return "2fa:nonce:" + userID }
func failureKey(userID string) string { return "2fa:fail:" + userID }
func resendKey(userID string) string  { return "2fa:resend:" + userID }

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryNonceCache is a process-local NonceCache for single-instance
// deployments and tests.
type MemoryNonceCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryNonceCache(now func() time.Time) *MemoryNonceCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryNonceCache{entries: make(map[string]memoryEntry), now: now}
}

// lookup must be called with mu held.
func (c *MemoryNonceCache) lookup(key string) (memoryEntry, bool) {
	entry, ok := c.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

func (c *MemoryNonceCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryNonceCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lookup(key)
	return entry.value, ok, nil
}

func (c *MemoryNonceCache) Consume(_ context.Context, key, value string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lookup(key)
	if !ok || subtle.ConstantTimeCompare([]byte(entry.value), []byte(value)) != 1 {
		return false, nil
	}
	delete(c.entries, key)
	return true, nil
}

func (c *MemoryNonceCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryNonceCache) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lookup(key)
	var n int64
	if ok {
		n, _ = strconv.ParseInt(entry.value, 10, 64)
	} else {
		entry.expiresAt = c.now().Add(ttl)
	}
	n++
	entry.value = strconv.FormatInt(n, 10)
	c.entries[key] = entry
	return n, nil
}

// Purge drops expired entries; Get and Consume already ignore them.
func (c *MemoryNonceCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
