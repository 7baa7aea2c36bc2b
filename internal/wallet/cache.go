package wallet

import (
	"sync"
	"time"

	"ledger_go/internal/domain"
)

// DefaultTTL bounds how stale a served valuation can be.
const DefaultTTL = 8 * time.Second

type cacheEntry struct {
	snapshot *domain.WalletSummarySnapshot
	storedAt time.Time
}

// Cache is a TTL-bounded, in-memory store of wallet summary snapshots.
// Entries past their TTL are treated as absent and evicted lazily on read.
// Snapshots are always reconstructable from the ledger plus current prices,
// so dropping one is never a correctness problem.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry

	now func() time.Time // test seam
}

// NewCache creates a cache with the given TTL. ttl <= 0 uses DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the account's snapshot, or nil when absent or expired.
func (c *Cache) Get(accountID string) *domain.WalletSummarySnapshot {
	c.mu.RLock()
	entry, ok := c.entries[accountID]
	c.mu.RUnlock()

	if !ok {
		return nil
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		// Lazy eviction; re-check under the write lock.
		c.mu.Lock()
		if current, still := c.entries[accountID]; still && current.storedAt.Equal(entry.storedAt) {
			delete(c.entries, accountID)
		}
		c.mu.Unlock()
		return nil
	}
	return entry.snapshot
}

// Set stores a fresh snapshot for the account.
func (c *Cache) Set(accountID string, snapshot *domain.WalletSummarySnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[accountID] = cacheEntry{snapshot: snapshot, storedAt: c.now()}
}

// Invalidate removes the account's entry, if any.
func (c *Cache) Invalidate(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, accountID)
}

// Len returns the number of resident entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
