package usgs

import (
	"context"
	"sync"
)

// SiteInformer is the lookup surface the enricher needs.
type SiteInformer interface {
	SiteInfo(ctx context.Context, siteIDs []string) (map[string]Site, error)
}

// CachedClient wraps a SiteInformer with an in-memory LRU cache so repeat
// runs in one process only fetch sites not seen before.
type CachedClient struct {
	inner SiteInformer
	cache *lruCache
}

// NewCachedClient creates a cache decorator around a site-information client.
func NewCachedClient(inner SiteInformer, maxEntries int) *CachedClient {
	return &CachedClient{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

func (c *CachedClient) SiteInfo(ctx context.Context, siteIDs []string) (map[string]Site, error) {
	result := make(map[string]Site, len(siteIDs))
	var misses []string
	for _, id := range siteIDs {
		if site, ok := c.cache.get(id); ok {
			result[id] = site
		} else {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := c.inner.SiteInfo(ctx, misses)
	if err != nil {
		return nil, err
	}
	// Only cache sites the service actually knows so transient gaps can be retried.
	for id, site := range fetched {
		c.cache.put(id, site)
		result[id] = site
	}
	return result, nil
}

// lruCache is a small thread-safe LRU cache of Site records.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value Site
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (Site, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Site{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value Site) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
