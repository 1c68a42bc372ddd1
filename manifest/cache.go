package manifest

import "sync"

// Cache memoizes Load by directory path, so repeated durable-step
// invocations that load the same agent manifest (the load-manifest step,
// §4.5 "Typical steps") avoid re-reading and re-parsing the filesystem on
// every call within a process. It is write-once-read-many per key and safe
// for concurrent use by parallel branches and loop iterations (§5, "Shared-
// resource policy").
type Cache struct {
	mu    sync.RWMutex
	byDir map[string]*Manifest
}

// NewCache constructs an empty manifest cache.
func NewCache() *Cache {
	return &Cache{byDir: make(map[string]*Manifest)}
}

// Load returns the cached Manifest for dir, loading and caching it on first
// use. Concurrent callers racing to populate the same key converge on the
// same loaded Manifest; the loser's parsed copy is discarded rather than
// replacing the cached one, so the cache never observes a key overwritten
// mid-run.
func (c *Cache) Load(dir string) (*Manifest, error) {
	c.mu.RLock()
	m, ok := c.byDir[dir]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	loaded, err := Load(dir)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.byDir[dir]; ok {
		return existing, nil
	}
	c.byDir[dir] = loaded
	return loaded, nil
}
