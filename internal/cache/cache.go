package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/r3e-network/http-ingest-connector/internal/config"
)

// Key computes cache_key = hash(method, effective_url, selected request
// headers). headerNames selects which request headers participate in
// the key (e.g. Accept, Authorization scope markers); unnamed headers
// never affect cacheability.
func Key(method, effectiveURL string, headers map[string]string, headerNames []string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(effectiveURL))
	names := append([]string(nil), headerNames...)
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte{0})
		h.Write([]byte(name))
		h.Write([]byte{'='})
		h.Write([]byte(headers[name]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Recorder receives cache hit/miss/eviction observations. The metrics
// sink implements this; tests can supply a no-op.
type Recorder interface {
	Hit(endpoint string)
	Miss(endpoint string)
	Eviction(endpoint, reason string)
}

type noopRecorder struct{}

func (noopRecorder) Hit(string)            {}
func (noopRecorder) Miss(string)           {}
func (noopRecorder) Eviction(string, string) {}

// Cache is a single endpoint's response cache.
type Cache struct {
	mu                  sync.Mutex
	store               store
	ttl                 time.Duration
	endpoint            string
	conditionalEnabled  bool
	etagEnabled         bool
	lastModifiedEnabled bool
	invalidationEnabled bool
	invalidationCodes   map[int]bool
	rec                 Recorder
	bytes               int64
	maxBytes            int64
	sizes               map[string]int64
}

// New builds a Cache for one endpoint from its effective CacheConfig.
func New(endpoint string, cfg config.CacheConfig, rec Recorder) *Cache {
	if rec == nil {
		rec = noopRecorder{}
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 1000
	}

	var s store
	switch cfg.EvictionPolicy {
	case config.EvictionLFU:
		s = newLFUStore(maxSize)
	case config.EvictionFIFO:
		s = newFIFOStore(maxSize)
	default:
		s = newLRUStore(maxSize)
	}

	codes := map[int]bool{}
	for _, c := range cfg.InvalidationErrorCodes {
		codes[c] = true
	}
	if len(codes) == 0 && cfg.InvalidationTrigger == "5xx" {
		for c := 500; c < 600; c++ {
			codes[c] = true
		}
	}

	return &Cache{
		store:               s,
		ttl:                 time.Duration(cfg.TTLSeconds) * time.Second,
		endpoint:            endpoint,
		conditionalEnabled:  cfg.ConditionalEnabled,
		etagEnabled:         cfg.ETagEnabled,
		lastModifiedEnabled: cfg.LastModifiedEnabled,
		invalidationEnabled: cfg.InvalidationEnabled,
		invalidationCodes:   codes,
		rec:                 rec,
		maxBytes:            int64(cfg.MaxMemoryMB) * 1024 * 1024,
		sizes:               make(map[string]int64),
	}
}

// Get returns the cached entry for key if present and unexpired.
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.store.get(key)
	if !ok || e.Expired(time.Now()) {
		c.rec.Miss(c.endpoint)
		return nil, false
	}
	e.HitCount++
	e.LastAccess = time.Now()
	c.rec.Hit(c.endpoint)
	return e, true
}

// Set stores body under key with the cache's configured TTL, recording
// conditional headers from resp when present. Both max_size (entry
// count, enforced by the store) and max_memory_mb (total cached bytes,
// enforced here) bound the cache; whichever limit is hit first triggers
// the eviction.
func (c *Cache) Set(key string, body []byte, statusCode int, resp *http.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	e := &Entry{
		Body:       body,
		StatusCode: statusCode,
		StoredAt:   now,
		ExpiresAt:  now.Add(c.ttl),
		SizeBytes:  int64(len(body)),
		LastAccess: now,
	}
	if c.conditionalEnabled && resp != nil {
		if c.etagEnabled {
			e.ETag = resp.Header.Get("ETag")
		}
		if c.lastModifiedEnabled {
			e.LastModified = resp.Header.Get("Last-Modified")
		}
	}

	if old, ok := c.sizes[key]; ok {
		c.bytes -= old
	}
	evictedKey, evictedEntry, evicted := c.store.set(key, e)
	c.bytes += e.SizeBytes
	c.sizes[key] = e.SizeBytes
	if evicted {
		if evictedEntry != nil {
			c.bytes -= evictedEntry.SizeBytes
		}
		delete(c.sizes, evictedKey)
		reason := "capacity"
		if evictedKey != "" {
			reason = "capacity:" + evictedKey
		}
		c.rec.Eviction(c.endpoint, reason)
	}

	c.enforceMemoryBoundLocked()
}

// enforceMemoryBoundLocked evicts entries, through the store's own
// eviction-policy ordering, until total cached bytes is back at or
// below maxBytes. A no-op when max_memory_mb is unset.
func (c *Cache) enforceMemoryBoundLocked() {
	if c.maxBytes <= 0 {
		return
	}
	for c.bytes > c.maxBytes && c.store.len() > 0 {
		key, e, ok := c.store.evictOne()
		if !ok {
			return
		}
		if e != nil {
			c.bytes -= e.SizeBytes
		}
		delete(c.sizes, key)
		c.rec.Eviction(c.endpoint, "memory:"+key)
	}
}

// StaleEntry returns the entry stored under key regardless of whether
// its TTL has elapsed, without recording a hit/miss observation. Unlike
// Get, this lets a caller find a conditional-revalidation candidate for
// an entry that has gone stale — the exact moment Get's freshness
// filter would otherwise hide it.
func (c *Cache) StaleEntry(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.get(key)
}

// ApplyConditionalHeaders sets If-None-Match/If-Modified-Since on req
// from the cached entry for key (fresh or stale), returning true when
// at least one header was applied, so a caller can issue a
// lighter-weight revalidation request instead of a full fetch.
func (c *Cache) ApplyConditionalHeaders(key string, req *http.Request) bool {
	if !c.conditionalEnabled {
		return false
	}
	e, ok := c.StaleEntry(key)
	if !ok || !e.Revalidatable() {
		return false
	}
	applied := false
	if c.etagEnabled && e.ETag != "" {
		req.Header.Set("If-None-Match", e.ETag)
		applied = true
	}
	if c.lastModifiedEnabled && e.LastModified != "" {
		req.Header.Set("If-Modified-Since", e.LastModified)
		applied = true
	}
	return applied
}

// ConditionalHeaders returns the If-None-Match/If-Modified-Since header
// values to attach to a revalidation request for key, for callers (like
// the orchestrator's fetcher dispatch) that build requests from a plain
// header map rather than an *http.Request.
func (c *Cache) ConditionalHeaders(key string) map[string]string {
	if !c.conditionalEnabled {
		return nil
	}
	e, ok := c.StaleEntry(key)
	if !ok || !e.Revalidatable() {
		return nil
	}
	out := map[string]string{}
	if c.etagEnabled && e.ETag != "" {
		out["If-None-Match"] = e.ETag
	}
	if c.lastModifiedEnabled && e.LastModified != "" {
		out["If-Modified-Since"] = e.LastModified
	}
	return out
}

// StoredBody returns the body bytes for key regardless of freshness, for
// re-emitting a cached body after a 304 Not Modified response.
func (c *Cache) StoredBody(key string) ([]byte, bool) {
	e, ok := c.StaleEntry(key)
	if !ok {
		return nil, false
	}
	return e.Body, true
}

// Refresh extends an existing entry's TTL after a 304 Not Modified
// revalidation response, without re-storing the body.
func (c *Cache) Refresh(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.store.get(key)
	if !ok {
		return
	}
	e.ExpiresAt = time.Now().Add(c.ttl)
}

// InvalidateOnStatus removes key from the cache if statusCode matches
// one of the endpoint's configured invalidation trigger codes.
func (c *Cache) InvalidateOnStatus(key string, statusCode int) {
	if !c.invalidationEnabled || !c.invalidationCodes[statusCode] {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.store.delete(key); ok {
		c.bytes -= e.SizeBytes
		delete(c.sizes, key)
	}
	c.rec.Eviction(c.endpoint, "error:"+strconv.Itoa(statusCode))
}

// Invalidate removes key unconditionally.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.store.delete(key); ok {
		c.bytes -= e.SizeBytes
		delete(c.sizes, key)
	}
}

// Len returns the number of entries currently stored.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.len()
}

// Sweep removes every entry whose TTL has elapsed, returning the count
// removed. Get already treats an expired entry as a miss, so this is
// purely proactive: it keeps MaxSize/MaxMemoryMB from being consumed by
// dead entries between accesses on endpoints that have gone quiet,
// rather than changing any lookup's observable behavior.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, key := range c.store.keys() {
		e, ok := c.store.get(key)
		if ok && e.Expired(now) {
			if dead, ok := c.store.delete(key); ok {
				c.bytes -= dead.SizeBytes
				delete(c.sizes, key)
			}
			removed++
		}
	}
	return removed
}
