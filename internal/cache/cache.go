package cache

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/varoOP/seasondb/internal/domain"
)

// Cache is the process-wide fingerprint to remote reference map shared by all workers.
// Every method takes the lock for the duration of a single map operation only.
type Cache struct {
	mu      sync.Mutex
	entries map[domain.Fingerprint]string
	version uint64
	saved   uint64
}

var _ domain.DedupCache = (*Cache)(nil)

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[domain.Fingerprint]string)}
}

// NewFromEntries creates a cache seeded with existing entries.
func NewFromEntries(entries map[domain.Fingerprint]string) *Cache {
	c := New()
	for fp, ref := range entries {
		c.entries[fp] = ref
	}
	return c
}

// Lookup returns the reference stored for fp.
func (c *Cache) Lookup(fp domain.Fingerprint) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ref, ok := c.entries[fp]
	return ref, ok
}

// Insert binds fp to reference. Re-inserting the same pair is a no-op; binding an existing
// fingerprint to a different reference returns domain.ErrCacheConflict and leaves the entry intact.
func (c *Cache) Insert(fp domain.Fingerprint, reference string) error {
	if reference == "" {
		return errors.Errorf("empty reference for fingerprint %s", fp)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[fp]; ok {
		if existing == reference {
			return nil
		}
		return errors.Wrapf(domain.ErrCacheConflict, "fingerprint %s: have %q, got %q", fp, existing, reference)
	}

	c.entries[fp] = reference
	c.version++
	return nil
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entries returns a copy of all entries.
func (c *Cache) Entries() map[domain.Fingerprint]string {
	out, _ := c.snapshot()
	return out
}

// RemoveUnreferenced drops every entry whose fingerprint is not in keep and returns how many were removed.
func (c *Cache) RemoveUnreferenced(keep map[domain.Fingerprint]struct{}) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for fp := range c.entries {
		if _, ok := keep[fp]; !ok {
			delete(c.entries, fp)
			removed++
		}
	}
	if removed > 0 {
		c.version++
	}
	return removed
}

// Dirty reports whether the cache changed since it was loaded or last saved.
func (c *Cache) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version != c.saved
}

func (c *Cache) snapshot() (map[domain.Fingerprint]string, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[domain.Fingerprint]string, len(c.entries))
	for fp, ref := range c.entries {
		out[fp] = ref
	}
	return out, c.version
}

func (c *Cache) markSaved(version uint64) {
	c.mu.Lock()
	if version > c.saved {
		c.saved = version
	}
	c.mu.Unlock()
}
