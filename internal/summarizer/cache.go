package summarizer

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const (
	DefaultCacheEntries = 1024
	DefaultCacheTTL     = time.Hour
)

// CachingSummarizer remembers successful summaries of identical requests.
type CachingSummarizer struct {
	next  Summarizer
	cache *requestCache
}

// NewCachingSummarizer wraps next. Non-positive maxEntries or ttl return next
// unchanged.
func NewCachingSummarizer(next Summarizer, maxEntries int, ttl time.Duration) Summarizer {
	if maxEntries <= 0 || ttl <= 0 {
		return next
	}

	return &CachingSummarizer{
		next:  next,
		cache: newRequestCache(maxEntries, ttl),
	}
}

func (c *CachingSummarizer) Summarize(ctx context.Context, req Request) (string, error) {
	if summary, ok := c.cache.lookup(req); ok {
		return summary, nil
	}

	summary, err := c.next.Summarize(ctx, req)
	if err != nil {
		return "", err
	}

	c.cache.store(req, summary)

	return summary, nil
}

// requestCache is an LRU of summaries keyed by the whole request. Entries
// older than ttl are treated as missing.
type requestCache struct {
	mu       sync.Mutex
	byReq    map[Request]*list.Element
	lru      *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

type cachedSummary struct {
	req      Request
	summary  string
	storedAt time.Time
}

func newRequestCache(capacity int, ttl time.Duration) *requestCache {
	return &requestCache{
		byReq:    make(map[Request]*list.Element, capacity),
		lru:      list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (c *requestCache) lookup(req Request) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.byReq[req]
	if !ok {
		return "", false
	}

	cached := elem.Value.(*cachedSummary)
	if c.stale(cached) {
		c.drop(elem)

		return "", false
	}

	c.lru.MoveToFront(elem)

	return cached.summary, true
}

// store keeps summary for req. Empty summaries are not kept.
func (c *requestCache) store(req Request, summary string) {
	if summary == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.byReq[req]; ok {
		cached := elem.Value.(*cachedSummary)
		cached.summary = summary
		cached.storedAt = c.now()
		c.lru.MoveToFront(elem)

		return
	}

	c.byReq[req] = c.lru.PushFront(&cachedSummary{req: req, summary: summary, storedAt: c.now()})

	// Trim from the least recently used end: overflow first, then any stale
	// tail. Stale entries elsewhere go on their next lookup.
	for c.lru.Len() > c.capacity {
		c.drop(c.lru.Back())
	}
	for back := c.lru.Back(); back != nil && c.stale(back.Value.(*cachedSummary)); back = c.lru.Back() {
		c.drop(back)
	}
}

func (c *requestCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Len()
}

func (c *requestCache) stale(cached *cachedSummary) bool {
	return c.now().Sub(cached.storedAt) > c.ttl
}

func (c *requestCache) drop(elem *list.Element) {
	delete(c.byReq, elem.Value.(*cachedSummary).req)
	c.lru.Remove(elem)
}
